// Package turn applies moves to live sessions.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/cheese-matchd/internal/events"
	"github.com/park285/cheese-matchd/internal/obslog"
	"github.com/park285/cheese-matchd/internal/rules"
	"github.com/park285/cheese-matchd/internal/session"
	"github.com/park285/cheese-matchd/pkg/gamedto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MoveResult is the position after an accepted move.
type MoveResult struct {
	GameID   string
	Board    string
	Turn     gamedto.Color
	Terminal bool
	Winner   string
	Version  int64
}

type Coordinator struct {
	sessions *session.Store
	engine   rules.Engine
	bus      *events.Broadcaster
}

func New(sessions *session.Store, engine rules.Engine, bus *events.Broadcaster) *Coordinator {
	return &Coordinator{sessions: sessions, engine: engine, bus: bus}
}

// ApplyMove validates and commits mv for playerID. A concurrent commit on the
// same session triggers one re-read and re-validation before the conflict is
// surfaced, so a duplicate submission is rejected instead of applied twice.
func (c *Coordinator) ApplyMove(ctx context.Context, playerID string, mv gamedto.Move) (*MoveResult, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" || strings.TrimSpace(mv.From) == "" || strings.TrimSpace(mv.To) == "" {
		return nil, gamedto.ErrInvalidArgs
	}

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var res *MoveResult
		res, err = c.tryMove(ctx, playerID, mv)
		if !errors.Is(err, gamedto.ErrVersionConflict) {
			return res, err
		}
		obslog.L().Debug("move_conflict", zap.String("player_id", playerID), zap.Int("attempt", attempt+1))
	}
	return nil, err
}

func (c *Coordinator) tryMove(ctx context.Context, playerID string, mv gamedto.Move) (*MoveResult, error) {
	sess, err := c.sessions.ForPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, gamedto.ErrSessionNotFound
	}
	if sess.Status != session.StatusActive {
		return nil, gamedto.ErrSessionNotActive
	}
	if sess.PlayerFor(sess.Turn) != playerID {
		return nil, gamedto.ErrNotYourTurn
	}

	out, err := c.engine.Validate(ctx, sess.Board, mv)
	if err != nil {
		return nil, fmt.Errorf("validate move: %w: %w", gamedto.ErrRulesUnavailable, err)
	}
	if !out.Legal {
		return nil, gamedto.ErrIllegalMove
	}

	from, to := strings.ToLower(strings.TrimSpace(mv.From)), strings.ToLower(strings.TrimSpace(mv.To))
	next := sess.Clone()
	next.Board = out.FEN
	next.Turn = out.Turn
	next.History = append(next.History, gamedto.HistoryEntry{From: from, To: to, Promotion: out.Promotion, FEN: out.FEN})

	players := []string{events.PlayerTopic(sess.White), events.PlayerTopic(sess.Black), events.GameTopic(sess.ID)}
	stagers := []session.Stager{c.bus.Stage(ctx, gamedto.MoveMade(from, to, out.Promotion), players...)}
	if out.Terminal {
		next.Status = session.StatusCompleted
		next.Winner = out.Winner
		stagers = append(stagers, c.bus.Stage(ctx, gamedto.GameOver(out.Winner), players...))
	}

	if err := c.sessions.Save(ctx, next, stagers...); err != nil {
		return nil, err
	}
	obslog.L().Info("move_applied",
		zap.String("game_id", next.ID),
		zap.String("player_id", playerID),
		zap.String("move", from+to+out.Promotion),
		zap.Int64("version", next.Version),
	)

	if out.Terminal {
		// the completed record and its broadcasts are already committed; a
		// failed delete is left to the TTL
		if err := c.sessions.Delete(ctx, next.ID); err != nil {
			obslog.L().Warn("game_teardown_error", zap.String("game_id", next.ID), zap.Error(err))
		}
		obslog.L().Info("game_over", zap.String("game_id", next.ID), zap.String("winner", next.Winner))
	}

	return &MoveResult{
		GameID:   next.ID,
		Board:    next.Board,
		Turn:     next.Turn,
		Terminal: out.Terminal,
		Winner:   next.Winner,
		Version:  next.Version,
	}, nil
}

// State returns playerID's current session view, or an idle view.
func (c *Coordinator) State(ctx context.Context, playerID string) (gamedto.SessionView, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return gamedto.SessionView{}, gamedto.ErrInvalidArgs
	}
	sess, err := c.sessions.ForPlayer(ctx, playerID)
	if err != nil {
		return gamedto.SessionView{}, err
	}
	if sess == nil {
		return gamedto.SessionView{Status: "idle"}, nil
	}
	return sess.View(playerID), nil
}

// Resign ends playerID's active game in the opponent's favour.
func (c *Coordinator) Resign(ctx context.Context, playerID string) error {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return gamedto.ErrInvalidArgs
	}
	sess, err := c.sessions.ForPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	if sess == nil {
		return gamedto.ErrSessionNotFound
	}
	if sess.Status != session.StatusActive {
		return gamedto.ErrSessionNotActive
	}
	color, _ := sess.ColorOf(playerID)
	winner := string(color.Opposite())
	topics := []string{events.PlayerTopic(sess.White), events.PlayerTopic(sess.Black), events.GameTopic(sess.ID)}
	_, err = c.sessions.Discard(ctx, sess.ID, func(prev *session.Session, pipe redis.Pipeliner) {
		if prev.Status == session.StatusActive {
			c.bus.Stage(ctx, gamedto.GameOver(winner), topics...)(pipe)
		}
	})
	if err == nil {
		obslog.L().Info("game_resigned", zap.String("game_id", sess.ID), zap.String("player_id", playerID))
	}
	return err
}
