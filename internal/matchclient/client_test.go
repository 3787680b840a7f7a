package matchclient

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/cheese-matchd/internal/events"
	"github.com/park285/cheese-matchd/internal/httpapi"
	"github.com/park285/cheese-matchd/internal/httpc"
	"github.com/park285/cheese-matchd/internal/matchqueue"
	"github.com/park285/cheese-matchd/internal/msgcat"
	"github.com/park285/cheese-matchd/internal/reaper"
	"github.com/park285/cheese-matchd/internal/rules"
	"github.com/park285/cheese-matchd/internal/session"
	"github.com/park285/cheese-matchd/internal/stream"
	"github.com/park285/cheese-matchd/internal/turn"
	"github.com/park285/cheese-matchd/pkg/gamedto"
	"github.com/redis/go-redis/v9"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := session.NewStore(rdb, session.DefaultTTL)
	bus := events.New(rdb)
	queue := matchqueue.New(store, bus, matchqueue.DefaultTTL)
	msgs, _ := msgcat.New("")
	srv := httptest.NewServer(httpapi.NewRouter(httpapi.Deps{
		Queue:    queue,
		Turns:    turn.New(store, rules.NewChessEngine(), bus),
		Streams:  stream.New(bus, reaper.New(queue, store, bus), time.Hour),
		Redis:    rdb,
		Messages: msgs,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func openStream(t *testing.T, c *Client, pid string) <-chan gamedto.Event {
	t.Helper()
	u, err := c.StreamURL(pid)
	if err != nil {
		t.Fatalf("StreamURL: %v", err)
	}
	s := NewStream(u)
	ch := make(chan gamedto.Event, 16)
	ready := make(chan struct{})
	var once sync.Once
	s.OnEvent(func(ev gamedto.Event) {
		if ev.Type == gamedto.EventKeepalive {
			// the server subscribes before it sends the first keepalive
			once.Do(func() { close(ready) })
			return
		}
		ch <- ev
	})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	if s.State() != StateConnected {
		t.Fatalf("state = %s", s.State())
	}
	select {
	case <-ready:
	case <-time.After(3 * time.Second):
		t.Fatal("no keepalive")
	}
	return ch
}

func next(t *testing.T, ch <-chan gamedto.Event, want gamedto.EventType) gamedto.Event {
	t.Helper()
	select {
	case ev := <-ch:
		if ev.Type != want {
			t.Fatalf("event = %s, want %s", ev.Type, want)
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatalf("no %s", want)
	}
	return gamedto.Event{}
}

func TestMatchAndPlayOverWebSocket(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.URL, 2*time.Second)
	ctx := context.Background()

	alice := openStream(t, c, "alice")
	bob := openStream(t, c, "bob")

	if res, err := c.Join(ctx, "alice"); err != nil || res.Status != gamedto.JoinWaiting {
		t.Fatalf("alice join %+v %v", res, err)
	}
	res, err := c.Join(ctx, "bob")
	if err != nil || res.Status != gamedto.JoinMatched {
		t.Fatalf("bob join %+v %v", res, err)
	}

	var pa, pb gamedto.InitGamePayload
	_ = next(t, alice, gamedto.EventInitGame).Decode(&pa)
	_ = next(t, bob, gamedto.EventInitGame).Decode(&pb)
	if pa.Color != gamedto.White || pb.Color != gamedto.Black || pa.GameID != res.GameID || pb.GameID != res.GameID {
		t.Fatalf("init payloads %+v %+v", pa, pb)
	}

	mv, err := c.Move(ctx, "alice", gamedto.Move{From: "e2", To: "e4"})
	if err != nil || !mv.OK || mv.Turn != gamedto.Black {
		t.Fatalf("move %+v %v", mv, err)
	}
	next(t, alice, gamedto.EventMove)
	next(t, bob, gamedto.EventMove)

	_, err = c.Move(ctx, "alice", gamedto.Move{From: "d2", To: "d4"})
	var se *httpc.StatusError
	if !errors.As(err, &se) || se.Status != 400 {
		t.Fatalf("out-of-turn move err = %v", err)
	}

	view, err := c.State(ctx, "bob")
	if err != nil || view.Version != 2 || len(view.History) != 1 {
		t.Fatalf("state %+v %v", view, err)
	}

	if err := c.Resign(ctx, "bob"); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	var over gamedto.GameOverPayload
	_ = next(t, alice, gamedto.EventGameOver).Decode(&over)
	if over.Winner != "white" {
		t.Fatalf("winner = %q", over.Winner)
	}
}

func TestStreamURL(t *testing.T) {
	u, err := New("https://chess.example.com/base", time.Second).StreamURL("a b")
	if err != nil || u != "wss://chess.example.com/base/api/game/ws?playerId=a+b" {
		t.Fatalf("StreamURL = %q, %v", u, err)
	}
	if _, err := New("ftp://x", time.Second).StreamURL("a"); err == nil {
		t.Fatal("expected scheme error")
	}
}
