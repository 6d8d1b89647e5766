package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/google/logger"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"lottery-engine/internal/ledger"
)

func TestMain(m *testing.M) {
	defer logger.Init("test", false, false, io.Discard).Close()
	m.Run()
}

type fakeRedis struct {
	sent   map[string][]string
	fail   error
	closed bool
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	if f.fail != nil {
		return redis.NewIntResult(0, f.fail)
	}
	if f.sent == nil {
		f.sent = make(map[string][]string)
	}
	f.sent[channel] = append(f.sent[channel], string(message.([]byte)))
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func sample() []ledger.Event {
	return []ledger.Event{
		{ID: "e1", Type: ledger.EventTicketsPurchased, DrawID: 1, Account: "0xalice", TicketIDs: []uint64{1, 2}, Amount: uint256.NewInt(20)},
		{ID: "e2", Type: ledger.EventPaused, Account: "0xowner"},
	}
}

func TestRedisPublisher(t *testing.T) {
	t.Parallel()

	t.Run("publishes events as JSON on the channel", func(t *testing.T) {
		t.Parallel()
		fake := &fakeRedis{}
		p := &RedisPublisher{client: fake, channel: "lottery.events"}

		require.NoError(t, p.Publish(context.Background(), sample()))
		require.Len(t, fake.sent["lottery.events"], 2)

		var got ledger.Event
		require.NoError(t, json.Unmarshal([]byte(fake.sent["lottery.events"][0]), &got))
		require.Equal(t, ledger.EventTicketsPurchased, got.Type)
		require.Equal(t, []uint64{1, 2}, got.TicketIDs)
		require.Equal(t, uint64(20), got.Amount.Uint64())

		require.NoError(t, p.Close())
		require.True(t, fake.closed)
	})

	t.Run("returns the server error", func(t *testing.T) {
		t.Parallel()
		p := &RedisPublisher{client: &fakeRedis{fail: errors.New("READONLY")}, channel: "c"}
		require.ErrorContains(t, p.Publish(context.Background(), sample()), "READONLY")
	})
}

func TestFanout(t *testing.T) {
	t.Parallel()

	var got [][]ledger.Event
	record := PublisherFunc(func(_ context.Context, events []ledger.Event) error {
		got = append(got, events)
		return nil
	})
	broken := PublisherFunc(func(context.Context, []ledger.Event) error {
		return errors.New("down")
	})

	f := Fanout{LogPublisher{}, broken, record}
	err := f.Publish(context.Background(), sample())
	require.ErrorContains(t, err, "down")
	require.Len(t, got, 1)

	require.NoError(t, f.Publish(context.Background(), nil))
	require.Len(t, got, 1)
}
