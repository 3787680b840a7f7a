package session

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/cheese-matchd/pkg/gamedto"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, DefaultTTL), mr
}

func TestCreateGetAndIndex(t *testing.T) {
	st, mr := newTestStore(t)
	ctx := context.Background()

	if err := st.Create(ctx, New("g1", "alice", "bob", time.Now())); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := st.Get(ctx, "g1")
	if err != nil || got == nil {
		t.Fatalf("Get: %v %v", got, err)
	}
	if got.Version != 1 || got.Status != StatusActive || got.Turn != gamedto.White || got.Board != StartFEN {
		t.Fatalf("unexpected initial session: %+v", got)
	}
	for _, p := range []string{"alice", "bob"} {
		id, err := st.PlayerGame(ctx, p)
		if err != nil || id != "g1" {
			t.Fatalf("PlayerGame(%s) = %q, %v", p, id, err)
		}
	}
	if ttl := mr.TTL(GameKey("g1")); ttl != DefaultTTL {
		t.Fatalf("game ttl = %s, want %s", ttl, DefaultTTL)
	}
	if ttl := mr.TTL(PlayerKey("bob")); ttl != DefaultTTL {
		t.Fatalf("index ttl = %s, want %s", ttl, DefaultTTL)
	}

	missing, err := st.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("Get(missing) = %v, %v", missing, err)
	}
}

func TestCreateRejectsBusyPlayer(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	if err := st.Create(ctx, New("g1", "alice", "bob", time.Now())); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := st.Create(ctx, New("g2", "carol", "bob", time.Now()))
	if !errors.Is(err, ErrPlayerBusy) {
		t.Fatalf("expected ErrPlayerBusy, got %v", err)
	}
	if err := st.Create(ctx, New("g1", "dave", "erin", time.Now())); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if err := st.Create(ctx, New("g3", "solo", "solo", time.Now())); !errors.Is(err, gamedto.ErrInvalidArgs) {
		t.Fatalf("self pairing must be rejected, got %v", err)
	}
}

func TestSaveIsVersionGated(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	if err := st.Create(ctx, New("g1", "alice", "bob", time.Now())); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, _ := st.Get(ctx, "g1")
	stale, _ := st.Get(ctx, "g1")

	first.History = append(first.History, gamedto.HistoryEntry{From: "e2", To: "e4", FEN: "x"})
	first.Turn = gamedto.Black
	if err := st.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if first.Version != 2 {
		t.Fatalf("Save should bump version in place, got %d", first.Version)
	}

	stale.Turn = gamedto.Black
	if err := st.Save(ctx, stale); !errors.Is(err, gamedto.ErrVersionConflict) {
		t.Fatalf("stale save: expected ErrVersionConflict, got %v", err)
	}
	if stale.Version != 1 {
		t.Fatalf("failed save must not touch the caller's copy, version=%d", stale.Version)
	}

	got, _ := st.Get(ctx, "g1")
	if got.Version != 2 || len(got.History) != 1 {
		t.Fatalf("lost update: %+v", got)
	}

	ghost := New("ghost", "x", "y", time.Now())
	if err := st.Save(ctx, ghost); !errors.Is(err, gamedto.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSaveRunsStagersInTransaction(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	if err := st.Create(ctx, New("g1", "alice", "bob", time.Now())); err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess, _ := st.Get(ctx, "g1")
	err := st.Save(ctx, sess, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, "marker", "1", time.Minute)
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if v, _ := st.Client().Get(ctx, "marker").Result(); v != "1" {
		t.Fatalf("stager did not run, marker=%q", v)
	}

	stale := sess.Clone()
	stale.Version = 1
	_ = st.Save(ctx, stale, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, "marker", "2", time.Minute)
	})
	if v, _ := st.Client().Get(ctx, "marker").Result(); v != "1" {
		t.Fatalf("stager ran for a rejected save, marker=%q", v)
	}
}

func TestDiscardKeepsForeignIndexes(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	if err := st.Create(ctx, New("g1", "alice", "bob", time.Now())); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// bob already moved on to another game
	if err := st.Client().Set(ctx, PlayerKey("bob"), "g2", time.Hour).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var staged bool
	prev, err := st.Discard(ctx, "g1", func(prev *Session, pipe redis.Pipeliner) { staged = prev.ID == "g1" })
	if err != nil || prev == nil || !staged {
		t.Fatalf("Discard = %v, %v (staged=%v)", prev, err, staged)
	}
	if s, _ := st.Get(ctx, "g1"); s != nil {
		t.Fatalf("session still present: %+v", s)
	}
	if id, _ := st.PlayerGame(ctx, "alice"); id != "" {
		t.Fatalf("alice index should be gone, got %q", id)
	}
	if id, _ := st.PlayerGame(ctx, "bob"); id != "g2" {
		t.Fatalf("bob's newer index was clobbered: %q", id)
	}

	again, err := st.Discard(ctx, "g1", func(*Session, redis.Pipeliner) { t.Fatal("stage called for absent session") })
	if err != nil || again != nil {
		t.Fatalf("second Discard = %v, %v", again, err)
	}
}

func TestClearPlayerComparesGame(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	_ = st.Client().Set(ctx, PlayerKey("alice"), "g1", time.Hour).Err()

	if err := st.ClearPlayer(ctx, "alice", "other"); err != nil {
		t.Fatalf("ClearPlayer: %v", err)
	}
	if id, _ := st.PlayerGame(ctx, "alice"); id != "g1" {
		t.Fatalf("mismatched clear removed index")
	}
	if err := st.ClearPlayer(ctx, "alice", "g1"); err != nil {
		t.Fatalf("ClearPlayer: %v", err)
	}
	if id, _ := st.PlayerGame(ctx, "alice"); id != "" {
		t.Fatalf("index not cleared: %q", id)
	}
	if err := st.ClearPlayer(ctx, "alice", ""); err != nil {
		t.Fatalf("clearing absent index should be a no-op: %v", err)
	}
}

func TestBusyIgnoresDanglingIndex(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()
	_ = st.Client().Set(ctx, PlayerKey("alice"), "gone", time.Hour).Err()
	busy, err := st.Busy(ctx, st.Client(), "alice")
	if err != nil || busy {
		t.Fatalf("Busy = %v, %v; dangling index must not count", busy, err)
	}
}

func TestStoreUnavailable(t *testing.T) {
	st, mr := newTestStore(t)
	mr.Close()
	_, err := st.Get(context.Background(), "g1")
	if !errors.Is(err, gamedto.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestCorruptRecordIsNotRetryable(t *testing.T) {
	st, mr := newTestStore(t)
	if err := mr.Set(GameKey("g1"), "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := st.Get(context.Background(), "g1")
	if err == nil {
		t.Fatal("expected decode error")
	}
	if _, ok := gamedto.AsDomain(err); ok {
		t.Fatalf("corrupt record reported as domain error: %v", err)
	}
}
