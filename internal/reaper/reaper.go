// Package reaper cleans up after a player's stream goes away.
package reaper

import (
	"context"
	"strings"

	"github.com/park285/cheese-matchd/internal/events"
	"github.com/park285/cheese-matchd/internal/matchqueue"
	"github.com/park285/cheese-matchd/internal/obslog"
	"github.com/park285/cheese-matchd/internal/session"
	"github.com/park285/cheese-matchd/pkg/gamedto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Reaper struct {
	queue    *matchqueue.Queue
	sessions *session.Store
	bus      *events.Broadcaster
}

func New(queue *matchqueue.Queue, sessions *session.Store, bus *events.Broadcaster) *Reaper {
	return &Reaper{queue: queue, sessions: sessions, bus: bus}
}

// OnDisconnect releases playerID's queue slot and session. The opponent of an
// active game gets exactly one opponent_left, published in the same MULTI that
// deletes the session, so a second call finds nothing and stays silent.
func (r *Reaper) OnDisconnect(ctx context.Context, playerID string) error {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return gamedto.ErrInvalidArgs
	}
	if err := r.queue.Leave(ctx, playerID); err != nil {
		return err
	}

	gameID, err := r.sessions.PlayerGame(ctx, playerID)
	if err != nil || gameID == "" {
		return err
	}
	if err := r.sessions.ClearPlayer(ctx, playerID, gameID); err != nil {
		return err
	}

	prev, err := r.sessions.Discard(ctx, gameID, func(prev *session.Session, pipe redis.Pipeliner) {
		if prev.Status != session.StatusActive {
			return
		}
		if opp := prev.Opponent(playerID); opp != "" {
			r.bus.Stage(ctx, gamedto.OpponentLeft(), events.PlayerTopic(opp), events.GameTopic(prev.ID))(pipe)
		}
	})
	if err != nil {
		return err
	}
	if prev != nil {
		obslog.L().Info("reap_session",
			zap.String("game_id", prev.ID),
			zap.String("player_id", playerID),
			zap.String("status", string(prev.Status)),
		)
	}
	return nil
}
