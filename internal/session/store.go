package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/cheese-matchd/internal/kv"
	"github.com/park285/cheese-matchd/pkg/gamedto"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds every session and index record so abandoned games self-clean.
const DefaultTTL = 24 * time.Hour

// maxAttempts is the initial try plus one retry on a lost WATCH.
const maxAttempts = 2

var (
	ErrExists     = errors.New("session: game id already exists")
	ErrPlayerBusy = errors.New("session: player already in an active game")
)

// Stager queues extra commands (usually PUBLISH) into the MULTI block of a
// store mutation so they commit, and are delivered, together with it.
type Stager func(pipe redis.Pipeliner)

// Store is the session CRUD layer over Redis. All writes are either version-gated
// WATCH/MULTI transactions or compare-and-delete; nothing does read-then-blind-write.
type Store struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewStore(rdb redis.UniversalClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func GameKey(id string) string { return "game:" + strings.TrimSpace(id) }

func PlayerKey(playerID string) string { return "player:" + strings.TrimSpace(playerID) + ":game" }

// Client exposes the underlying Redis client for callers that need to widen a
// transaction (the match queue watches its slot alongside the index keys).
func (s *Store) Client() redis.UniversalClient { return s.rdb }

// Create persists a fresh session and indexes both players. It fails if the id is
// taken or either player is already seated in an active session. It is the
// standalone form of StageCreate; the match queue stages the same writes
// inside its own transaction instead.
func (s *Store) Create(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" || sess.White == "" || sess.Black == "" || sess.White == sess.Black {
		return gamedto.ErrInvalidArgs
	}
	key := GameKey(sess.ID)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrExists
		}
		for _, p := range sess.Players() {
			busy, err := s.Busy(ctx, tx, p)
			if err != nil {
				return err
			}
			if busy {
				return fmt.Errorf("%w: %s", ErrPlayerBusy, p)
			}
		}
		pipe := tx.TxPipeline()
		if err := s.StageCreate(ctx, pipe, sess); err != nil {
			return err
		}
		_, err = pipe.Exec(ctx)
		return err
	}, key, PlayerKey(sess.White), PlayerKey(sess.Black))
	if errors.Is(err, redis.TxFailedErr) {
		return gamedto.ErrVersionConflict
	}
	return wrap("create", err)
}

// StageCreate queues the session record and both index entries into pipe.
func (s *Store) StageCreate(ctx context.Context, pipe redis.Pipeliner, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	pipe.Set(ctx, GameKey(sess.ID), raw, s.ttl)
	pipe.Set(ctx, PlayerKey(sess.White), sess.ID, s.ttl)
	pipe.Set(ctx, PlayerKey(sess.Black), sess.ID, s.ttl)
	return nil
}

// Get returns the session or nil when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := read(ctx, s.rdb, GameKey(id))
	return sess, wrap("get", err)
}

// PlayerGame returns the game id indexed for playerID, or "".
func (s *Store) PlayerGame(ctx context.Context, playerID string) (string, error) {
	id, err := s.rdb.Get(ctx, PlayerKey(playerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, wrap("index", err)
}

// ForPlayer resolves playerID's index and loads the session. A dangling index
// yields (nil, nil).
func (s *Store) ForPlayer(ctx context.Context, playerID string) (*Session, error) {
	id, err := s.PlayerGame(ctx, playerID)
	if err != nil || id == "" {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Busy reports whether playerID is indexed to an existing active session.
// c may be a *redis.Tx so the check runs inside a caller's WATCH.
func (s *Store) Busy(ctx context.Context, c redis.Cmdable, playerID string) (bool, error) {
	id, err := c.Get(ctx, PlayerKey(playerID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	sess, err := read(ctx, c, GameKey(id))
	if err != nil {
		return false, err
	}
	return sess != nil && sess.Status == StatusActive, nil
}

// ClearPlayer removes playerID's index entry if it still points at gameID.
// An empty gameID clears whatever is there.
func (s *Store) ClearPlayer(ctx context.Context, playerID, gameID string) error {
	key := PlayerKey(playerID)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if gameID != "" && cur != gameID {
			return nil
		}
		pipe := tx.TxPipeline()
		pipe.Del(ctx, key)
		_, err = pipe.Exec(ctx)
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// the entry changed under us; whoever changed it owns it now
		return nil
	}
	return wrap("clear index", err)
}

// Save writes next if the stored version still equals next.Version, bumping it
// by one. It is the only code path that advances Version. On success next is
// updated in place with the committed record. Stagers run inside the same MULTI.
func (s *Store) Save(ctx context.Context, next *Session, stage ...Stager) error {
	if next == nil || next.ID == "" {
		return gamedto.ErrInvalidArgs
	}
	key := GameKey(next.ID)
	var committed *Session
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := read(ctx, tx, key)
		if err != nil {
			return err
		}
		if cur == nil {
			return gamedto.ErrSessionNotFound
		}
		if cur.Version != next.Version {
			return gamedto.ErrVersionConflict
		}
		out := next.Clone()
		out.Version = cur.Version + 1
		out.LastMutatedAt = time.Now()
		raw, err := json.Marshal(out)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, raw, s.ttl)
		for _, fn := range stage {
			fn(pipe)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		committed = out
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return gamedto.ErrVersionConflict
	}
	if err != nil {
		return wrap("save", err)
	}
	*next = *committed
	return nil
}

// Delete removes the session and any index entries still pointing at it.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.Discard(ctx, id, nil)
	return err
}

// Discard atomically deletes the session and its index entries, running stage
// in the same MULTI with the record as it was just before deletion. It returns
// that record, or nil if the session was already gone (stage is not called).
func (s *Store) Discard(ctx context.Context, id string, stage func(prev *Session, pipe redis.Pipeliner)) (*Session, error) {
	key := GameKey(id)
	var removed *Session
	txf := func(tx *redis.Tx) error {
		removed = nil
		cur, err := read(ctx, tx, key)
		if err != nil || cur == nil {
			return err
		}
		wk, bk := PlayerKey(cur.White), PlayerKey(cur.Black)
		if err := tx.Watch(ctx, wk, bk).Err(); err != nil {
			return err
		}
		vals, err := tx.MGet(ctx, wk, bk).Result()
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Del(ctx, key)
		for i, k := range []string{wk, bk} {
			if v, ok := vals[i].(string); ok && v == cur.ID {
				pipe.Del(ctx, k)
			}
		}
		if stage != nil {
			stage(cur, pipe)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		removed = cur
		return nil
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if errors.Is(err, redis.TxFailedErr) {
		return nil, gamedto.ErrVersionConflict
	}
	if err != nil {
		return nil, wrap("discard", err)
	}
	return removed, nil
}

func read(ctx context.Context, c redis.Cmdable, key string) (*Session, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &sess, nil
}

// wrap tags transport failures as ErrStoreUnavailable; domain errors pass through.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := gamedto.AsDomain(err); ok || errors.Is(err, ErrExists) || errors.Is(err, ErrPlayerBusy) {
		return err
	}
	if kv.Unavailable(err) {
		return fmt.Errorf("session %s: %w: %w", op, gamedto.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("session %s: %w", op, err)
}
