// Package matchqueue pairs players through a single waiting slot in Redis.
package matchqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/park285/cheese-matchd/internal/events"
	"github.com/park285/cheese-matchd/internal/kv"
	"github.com/park285/cheese-matchd/internal/obslog"
	"github.com/park285/cheese-matchd/internal/session"
	"github.com/park285/cheese-matchd/pkg/gamedto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SlotKey holds the id of the single waiting player.
const SlotKey = "queue:waiting"

const DefaultTTL = 60 * time.Second

// maxAttempts: first try plus one retry after a lost race.
const maxAttempts = 2

// errRetry marks a lost race inside one attempt.
var errRetry = errors.New("matchqueue: retry")

// Result is the outcome of a join. Session is set only when Status is matched.
type Result struct {
	Status  string
	Session *session.Session
	Color   gamedto.Color
}

type Queue struct {
	rdb      redis.UniversalClient
	sessions *session.Store
	bus      *events.Broadcaster
	ttl      time.Duration
	now      func() time.Time
	newID    func() string
}

func New(sessions *session.Store, bus *events.Broadcaster, ttl time.Duration) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Queue{
		rdb:      sessions.Client(),
		sessions: sessions,
		bus:      bus,
		ttl:      ttl,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// TryEnqueueOrMatch parks playerID in the slot, or pairs it with the player
// already there. The waiting player gets white, the joiner black.
func (q *Queue) TryEnqueueOrMatch(ctx context.Context, playerID string) (*Result, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, gamedto.ErrInvalidArgs
	}

	if res, err := q.existing(ctx, playerID); err != nil || res != nil {
		return res, err
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		res, err := q.attempt(ctx, playerID)
		if errors.Is(err, errRetry) || errors.Is(err, redis.TxFailedErr) {
			obslog.L().Debug("match_race", zap.String("player_id", playerID), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, q.wrap(err)
		}
		return res, nil
	}
	return nil, gamedto.ErrQueueRace
}

// Leave clears the slot if playerID is the one waiting.
func (q *Queue) Leave(ctx context.Context, playerID string) error {
	err := q.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, SlotKey).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if cur != playerID {
			return nil
		}
		pipe := tx.TxPipeline()
		pipe.Del(ctx, SlotKey)
		_, err = pipe.Exec(ctx)
		return err
	}, SlotKey)
	if errors.Is(err, redis.TxFailedErr) {
		// the slot changed hands, so it no longer holds playerID
		return nil
	}
	if err != nil {
		return q.wrap(err)
	}
	return nil
}

// Waiting returns the current slot occupant, or "".
func (q *Queue) Waiting(ctx context.Context) (string, error) {
	id, err := q.rdb.Get(ctx, SlotKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", q.wrap(err)
	}
	return id, nil
}

// existing returns alreadyPlaying for a seated player and drops a stale index.
func (q *Queue) existing(ctx context.Context, playerID string) (*Result, error) {
	gameID, err := q.sessions.PlayerGame(ctx, playerID)
	if err != nil || gameID == "" {
		return nil, err
	}
	sess, err := q.sessions.Get(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if sess != nil && sess.Status == session.StatusActive {
		color, _ := sess.ColorOf(playerID)
		return &Result{Status: gamedto.JoinAlreadyPlaying, Session: sess, Color: color}, nil
	}
	if err := q.sessions.ClearPlayer(ctx, playerID, gameID); err != nil {
		return nil, err
	}
	obslog.L().Info("match_stale_index", zap.String("player_id", playerID), zap.String("game_id", gameID))
	return nil, nil
}

func (q *Queue) attempt(ctx context.Context, playerID string) (*Result, error) {
	ok, err := q.rdb.SetNX(ctx, SlotKey, playerID, q.ttl).Result()
	if err != nil {
		return nil, err
	}
	if ok {
		// a match seating playerID may have committed after the entry check
		seated, err := q.existing(ctx, playerID)
		if err != nil || seated != nil {
			if lerr := q.Leave(ctx, playerID); lerr != nil {
				obslog.L().Warn("match_slot_release_error", zap.String("player_id", playerID), zap.Error(lerr))
			}
			return seated, err
		}
		obslog.L().Info("match_waiting", zap.String("player_id", playerID))
		return &Result{Status: gamedto.JoinWaiting}, nil
	}

	var res *Result
	err = q.rdb.Watch(ctx, func(tx *redis.Tx) error {
		occupant, err := tx.Get(ctx, SlotKey).Result()
		if errors.Is(err, redis.Nil) {
			// consumed or expired between SETNX and GET
			return errRetry
		}
		if err != nil {
			return err
		}
		if occupant == playerID {
			pipe := tx.TxPipeline()
			pipe.Set(ctx, SlotKey, playerID, q.ttl)
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			res = &Result{Status: gamedto.JoinWaiting}
			return nil
		}
		if err := tx.Watch(ctx, session.PlayerKey(occupant), session.PlayerKey(playerID)).Err(); err != nil {
			return err
		}

		busy, err := q.sessions.Busy(ctx, tx, playerID)
		if err != nil {
			return err
		}
		if busy {
			res = &Result{Status: gamedto.JoinAlreadyPlaying}
			return nil
		}
		busy, err = q.sessions.Busy(ctx, tx, occupant)
		if err != nil {
			return err
		}
		if busy {
			// the occupant got matched elsewhere without leaving the slot
			pipe := tx.TxPipeline()
			pipe.Del(ctx, SlotKey)
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			return errRetry
		}

		sess := session.New(q.newID(), occupant, playerID, q.now())
		pipe := tx.TxPipeline()
		pipe.Del(ctx, SlotKey)
		if err := q.sessions.StageCreate(ctx, pipe, sess); err != nil {
			return err
		}
		q.bus.Stage(ctx, gamedto.InitGame(gamedto.White, sess.ID), events.PlayerTopic(sess.White))(pipe)
		q.bus.Stage(ctx, gamedto.InitGame(gamedto.Black, sess.ID), events.PlayerTopic(sess.Black))(pipe)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		res = &Result{Status: gamedto.JoinMatched, Session: sess, Color: gamedto.Black}
		return nil
	}, SlotKey)
	if err != nil {
		return nil, err
	}
	if res.Status == gamedto.JoinMatched {
		obslog.L().Info("match_created",
			zap.String("game_id", res.Session.ID),
			zap.String("white", res.Session.White),
			zap.String("black", res.Session.Black),
		)
	}
	return res, nil
}

func (q *Queue) wrap(err error) error {
	if _, ok := gamedto.AsDomain(err); ok {
		return err
	}
	if kv.Unavailable(err) {
		return fmt.Errorf("matchqueue: %w: %w", gamedto.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("matchqueue: %w", err)
}
