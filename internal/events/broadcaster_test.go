package events

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/cheese-matchd/pkg/gamedto"
	"github.com/redis/go-redis/v9"
)

func newTestBroadcaster(t *testing.T) (*Broadcaster, redis.UniversalClient) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb), rdb
}

func next(t *testing.T, sub *Subscription) gamedto.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return gamedto.Event{}
}

func TestPublishSubscribe(t *testing.T) {
	b, _ := newTestBroadcaster(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, PlayerTopic("alice"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if err := b.Publish(ctx, PlayerTopic("bob"), gamedto.OpponentLeft()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := b.Publish(ctx, PlayerTopic("alice"), gamedto.InitGame(gamedto.White, "g1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	ev := next(t, sub)
	var p gamedto.InitGamePayload
	if err := ev.Decode(&p); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.Type != gamedto.EventInitGame || p.Color != gamedto.White || p.GameID != "g1" {
		t.Fatalf("unexpected event %+v %+v", ev, p)
	}
}

func TestStagePublishesOnExec(t *testing.T) {
	b, rdb := newTestBroadcaster(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, PlayerTopic("alice"), GameTopic("g1"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	pipe := rdb.TxPipeline()
	b.Stage(ctx, gamedto.MoveMade("e2", "e4", ""), PlayerTopic("alice"), GameTopic("g1"))(pipe)
	b.Stage(ctx, gamedto.GameOver("white"), PlayerTopic("alice"))(pipe)
	if _, err := pipe.Exec(ctx); err != nil {
		t.Fatalf("Exec: %v", err)
	}

	want := []gamedto.EventType{gamedto.EventMove, gamedto.EventMove, gamedto.EventGameOver}
	for i, w := range want {
		if ev := next(t, sub); ev.Type != w {
			t.Fatalf("event %d = %s, want %s", i, ev.Type, w)
		}
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	b, _ := newTestBroadcaster(t)
	sub, err := b.Subscribe(context.Background(), PlayerTopic("alice"))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	_ = sub.Close()
	_ = sub.Close()
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after Close")
	}
}

func TestSubscribeRequiresTopic(t *testing.T) {
	b, _ := newTestBroadcaster(t)
	if _, err := b.Subscribe(context.Background()); err == nil {
		t.Fatal("expected error without topics")
	}
}
