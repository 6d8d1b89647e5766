// Package events delivers committed ledger events to observers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/google/logger"

	"lottery-engine/internal/ledger"
)

// Publisher delivers a batch of events. Events are only published after the
// operation that produced them has been persisted.
type Publisher interface {
	Publish(ctx context.Context, events []ledger.Event) error
}

// PublisherFunc converts a function to a Publisher.
type PublisherFunc func(ctx context.Context, events []ledger.Event) error

func (f PublisherFunc) Publish(ctx context.Context, events []ledger.Event) error {
	return f(ctx, events)
}

// LogPublisher writes one log line per event.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, events []ledger.Event) error {
	for _, e := range events {
		logger.Infof("event %s: type=%s draw=%d account=%s%s", e.ID, e.Type, e.DrawID, e.Account, amountSuffix(e))
	}
	return nil
}

func amountSuffix(e ledger.Event) string {
	if e.Amount == nil {
		return ""
	}
	return " amount=" + e.Amount.Dec()
}

type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisPublisher publishes each event as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	client  redisClient
	channel string
}

// NewRedisPublisher connects to addr and checks the server answers.
func NewRedisPublisher(ctx context.Context, addr, channel string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return &RedisPublisher{client: client, channel: channel}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, events []ledger.Event) error {
	for i := range events {
		payload, err := json.Marshal(&events[i])
		if err != nil {
			return fmt.Errorf("encode event %s: %w", events[i].ID, err)
		}
		if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
			return fmt.Errorf("publish event %s: %w", events[i].ID, err)
		}
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Fanout publishes to every publisher, even after one fails, and joins the
// errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, events []ledger.Event) error {
	if len(events) == 0 {
		return nil
	}
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
