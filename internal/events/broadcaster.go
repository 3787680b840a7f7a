// Package events fans typed game events out over Redis Pub/Sub.
//
// Delivery is at-most-once with no history: a frame published while nobody is
// subscribed is gone. Clients re-query state after reconnecting instead of
// expecting a gap-free stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/park285/cheese-matchd/internal/obslog"
	"github.com/park285/cheese-matchd/pkg/gamedto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func PlayerTopic(playerID string) string { return "player:" + strings.TrimSpace(playerID) }

func GameTopic(gameID string) string { return "game:" + strings.TrimSpace(gameID) }

type Broadcaster struct {
	rdb redis.UniversalClient
}

func New(rdb redis.UniversalClient) *Broadcaster { return &Broadcaster{rdb: rdb} }

// Publish sends ev to topic. Errors are logged and returned, but callers treat
// them as non-fatal: the store write that produced the event already committed.
func (b *Broadcaster) Publish(ctx context.Context, topic string, ev gamedto.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, topic, raw).Err(); err != nil {
		obslog.L().Warn("event_publish_error", zap.String("topic", topic), zap.String("type", string(ev.Type)), zap.Error(err))
		return fmt.Errorf("publish %s: %w: %w", topic, gamedto.ErrStoreUnavailable, err)
	}
	return nil
}

// Stage returns a closure that queues ev for every topic into a MULTI pipeline,
// so the frames are released exactly when (and in the order) the write commits.
func (b *Broadcaster) Stage(ctx context.Context, ev gamedto.Event, topics ...string) func(redis.Pipeliner) {
	raw, _ := json.Marshal(ev)
	return func(pipe redis.Pipeliner) {
		for _, t := range topics {
			pipe.Publish(ctx, t, raw)
		}
	}
}

// Subscribe listens on topics until Close. The returned subscription is live
// (the SUBSCRIBE was acknowledged) when Subscribe returns.
func (b *Broadcaster) Subscribe(ctx context.Context, topics ...string) (*Subscription, error) {
	if len(topics) == 0 {
		return nil, gamedto.ErrInvalidArgs
	}
	ps := b.rdb.Subscribe(ctx, topics...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %v: %w: %w", topics, gamedto.ErrStoreUnavailable, err)
	}
	sub := &Subscription{ps: ps, out: make(chan gamedto.Event, 16), done: make(chan struct{})}
	go sub.pump(ps.Channel())
	return sub, nil
}

// Subscription delivers decoded events from one or more topics.
type Subscription struct {
	ps   *redis.PubSub
	out  chan gamedto.Event
	done chan struct{}
	once sync.Once
}

// Events is closed after Close or when the underlying connection is torn down.
func (s *Subscription) Events() <-chan gamedto.Event { return s.out }

// Close unsubscribes; safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (s *Subscription) pump(in <-chan *redis.Message) {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var ev gamedto.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.Type == "" {
				obslog.L().Warn("event_decode_error", zap.String("topic", msg.Channel), zap.Error(err))
				continue
			}
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
	}
}
