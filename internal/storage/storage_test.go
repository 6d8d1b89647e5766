package storage

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/logger"
	"github.com/holiman/uint256"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"lottery-engine/internal/chain"
	"lottery-engine/internal/draw"
	"lottery-engine/internal/entropy"
	"lottery-engine/internal/ledger"
	"lottery-engine/internal/models"
)

func TestMain(m *testing.M) {
	defer logger.Init("test", false, false, io.Discard).Close()
	m.Run()
}

func newStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "lottery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type outbox struct{ pending []ledger.Transfer }

func (o *outbox) Transfer(t ledger.Transfer) error {
	o.pending = append(o.pending, t)
	return nil
}

func (o *outbox) take() []ledger.Transfer {
	p := o.pending
	o.pending = nil
	return p
}

func TestStorage(t *testing.T) {
	t.Parallel()

	t.Run("load on a fresh database reports nothing saved", func(t *testing.T) {
		t.Parallel()
		s := newStorage(t)
		_, _, ok, err := s.Load(context.Background())
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("reopening an existing database keeps its data", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "lottery.db")
		s, err := New(path)
		require.NoError(t, err)
		require.NoError(t, s.Save(context.Background(), ledger.Changes{
			State: ledger.State{CurrentDrawID: 1, SchemaVersion: 1},
		}, nil, chain.Block{Height: 3}))
		require.NoError(t, s.Close())

		s, err = New(path)
		require.NoError(t, err)
		defer s.Close()
		_, tip, ok, err := s.Load(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, uint64(3), tip.Height)
	})

	t.Run("round trips a ledger that has settled and paid", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := newStorage(t)

		clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
		host := chain.NewSimulatedHost(clock, [32]byte{0xaa})
		bank := &outbox{}
		cfg := ledger.DefaultConfig("0xowner")
		cfg.TicketPrice = *uint256.NewInt(1_000)
		cfg.DrawInterval = time.Hour
		deps := ledger.Deps{Host: host, Bank: bank, Entropy: entropy.Fixed(5)}

		l, err := ledger.New(cfg, deps)
		require.NoError(t, err)
		save := func() {
			t.Helper()
			tip := host.Mine()
			require.NoError(t, s.Save(ctx, l.TakeChanges(), bank.take(), tip))
		}
		save()

		w := draw.Generate(uint256.NewInt(5), draw.DefaultRules())
		_, err = l.Purchase("0xalice", []ledger.TicketRequest{
			{MainNumbers: w.Main[:], BonusNumber: w.Bonus},
			{MainNumbers: []int{1, 2, 3, 4, 5}, BonusNumber: 1},
		}, uint256.NewInt(2_000))
		require.NoError(t, err)
		save()

		clock.Advance(2 * time.Hour)
		_, err = l.Purchase("0xbob", []ledger.TicketRequest{{MainNumbers: []int{6, 7, 8, 9, 10}, BonusNumber: 2}}, uint256.NewInt(1_000))
		require.NoError(t, err)
		save()

		_, err = l.Claim("0xalice", []uint64{1})
		require.NoError(t, err)
		require.NoError(t, l.Donate("0xcarol", uint256.NewInt(17)))
		require.NoError(t, l.Pause("0xowner"))
		tip := host.Mine()
		require.NoError(t, s.Save(ctx, l.TakeChanges(), bank.take(), tip))

		snap, gotTip, ok, err := s.Load(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, tip, gotTip)
		require.Equal(t, l.Snapshot(), snap)

		restored, err := ledger.Restore(cfg, deps, snap)
		require.NoError(t, err)
		require.True(t, restored.Paused())
		require.Equal(t, l.PlayerTotals("0xalice"), restored.PlayerTotals("0xalice"))

		payouts, err := s.Payouts(ctx, 10)
		require.NoError(t, err)
		require.Len(t, payouts, 3)
		require.Equal(t, ledger.TransferPrize, payouts[0].Transfer.Kind)
		require.Equal(t, "0xalice", payouts[0].Transfer.To)
		require.Equal(t, ledger.TransferFee, payouts[2].Transfer.Kind)
		require.Equal(t, uint64(100), payouts[2].Transfer.Amount.Uint64())

		events, err := s.Events(ctx, 1, 10)
		require.NoError(t, err)
		require.NotEmpty(t, events)
		require.Equal(t, ledger.EventDrawExecuted, events[0].Type)
		require.Equal(t, w.Main, *events[0].WinningMain)

		all, err := s.Events(ctx, 0, 2)
		require.NoError(t, err)
		require.Len(t, all, 2)
		require.Equal(t, ledger.EventPaused, all[0].Type)
		require.Equal(t, ledger.EventDonationReceived, all[1].Type)
		require.Equal(t, uint64(17), all[1].Amount.Uint64())
	})

	t.Run("payouts stay pending until marked dispatched", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := newStorage(t)

		transfers := []ledger.Transfer{
			{To: "0xowner", Amount: *uint256.NewInt(50), Kind: ledger.TransferFee, DrawID: 1},
			{To: "0xalice", Amount: *uint256.NewInt(475), Kind: ledger.TransferPrize, DrawID: 1},
		}
		require.NoError(t, s.Save(ctx, ledger.Changes{State: ledger.State{CurrentDrawID: 1, SchemaVersion: 1}}, transfers, chain.Block{}))

		pending, err := s.PendingPayouts(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		require.Equal(t, ledger.TransferFee, pending[0].Transfer.Kind)
		require.True(t, pending[0].DispatchedAt.IsZero())

		at := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.MarkDispatched(ctx, pending[0].ID, at))
		require.Error(t, s.MarkDispatched(ctx, pending[0].ID, at))

		pending, err = s.PendingPayouts(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.Equal(t, "0xalice", pending[0].Transfer.To)

		all, err := s.Payouts(ctx, 10)
		require.NoError(t, err)
		require.Len(t, all, 2)
		require.True(t, all[0].DispatchedAt.IsZero())
		require.True(t, at.Equal(all[1].DispatchedAt))
	})

	t.Run("a failing statement writes nothing", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := newStorage(t)

		bad := ledger.Changes{
			State: ledger.State{CurrentDrawID: 9, SchemaVersion: 1, TicketCount: 1},
			// Draw 9 is never written, so the foreign key rejects the ticket.
			Tickets: []models.Ticket{{ID: 1, Owner: "0xalice", DrawID: 9, MainNumbers: [5]int{1, 2, 3, 4, 5}, BonusNumber: 1}},
			Players: []string{"0xalice"},
		}
		err := s.Save(ctx, bad, []ledger.Transfer{{To: "0xowner", Amount: *uint256.NewInt(1), Kind: ledger.TransferFee}}, chain.Block{})
		require.Error(t, err)

		_, _, ok, err := s.Load(ctx)
		require.NoError(t, err)
		require.False(t, ok)
		payouts, err := s.Payouts(ctx, 10)
		require.NoError(t, err)
		require.Empty(t, payouts)
	})
}

func TestCodec(t *testing.T) {
	t.Parallel()

	var nums [5]int
	require.NoError(t, decodeNumbers(encodeNumbers([]int{3, 9, 12, 30, 35}), nums[:]))
	require.Equal(t, [5]int{3, 9, 12, 30, 35}, nums)
	require.Error(t, decodeNumbers("1,2,3", nums[:]))
	require.Error(t, decodeNumbers("1,2,x,4,5", nums[:]))

	big := new(uint256.Int).SetAllOne()
	amounts := []uint256.Int{*big, *uint256.NewInt(0), *uint256.NewInt(42)}
	got := make([]uint256.Int, 3)
	require.NoError(t, decodeAmounts(encodeAmounts(amounts), got))
	require.Equal(t, amounts, got)

	require.True(t, fromUnixNano(unixNano(time.Time{})).IsZero())
	ts := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	require.Equal(t, ts, fromUnixNano(unixNano(ts)))
}
