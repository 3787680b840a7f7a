// Package stream holds long-lived client connections open and forwards bus
// events to them. It keeps no game state; a reconnecting client re-reads
// state through the state query.
package stream

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/park285/cheese-matchd/internal/events"
	"github.com/park285/cheese-matchd/internal/obslog"
	"github.com/park285/cheese-matchd/pkg/gamedto"
	"go.uber.org/zap"
)

const DefaultKeepalive = 25 * time.Second

// reapTimeout bounds cleanup that runs after the request context is gone.
const reapTimeout = 5 * time.Second

// Disconnecter is notified once per closed player stream.
type Disconnecter interface {
	OnDisconnect(ctx context.Context, playerID string) error
}

type Gateway struct {
	bus       *events.Broadcaster
	reaper    Disconnecter
	keepalive time.Duration
}

func New(bus *events.Broadcaster, reaper Disconnecter, keepalive time.Duration) *Gateway {
	if keepalive <= 0 {
		keepalive = DefaultKeepalive
	}
	return &Gateway{bus: bus, reaper: reaper, keepalive: keepalive}
}

// Conn is one open stream. Events is closed after teardown.
type Conn struct {
	ID       string
	PlayerID string
	GameID   string

	g    *Gateway
	sub  *events.Subscription
	out  chan gamedto.Event
	done chan struct{}
	once sync.Once
}

// Open subscribes playerID's topic. Cancelling ctx (client abort) and calling
// Close (explicit cancel) converge on a single teardown that reaps the player.
func (g *Gateway) Open(ctx context.Context, playerID string) (*Conn, error) {
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return nil, gamedto.ErrInvalidArgs
	}
	return g.open(ctx, &Conn{PlayerID: playerID}, events.PlayerTopic(playerID))
}

// OpenSpectator follows a game's topic. Spectators are never reaped.
func (g *Gateway) OpenSpectator(ctx context.Context, gameID string) (*Conn, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return nil, gamedto.ErrInvalidArgs
	}
	return g.open(ctx, &Conn{GameID: gameID}, events.GameTopic(gameID))
}

func (g *Gateway) open(ctx context.Context, c *Conn, topic string) (*Conn, error) {
	sub, err := g.bus.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	c.ID = ulid.Make().String()
	c.g = g
	c.sub = sub
	c.out = make(chan gamedto.Event, 16)
	c.done = make(chan struct{})
	obslog.L().Info("stream_open", zap.String("conn_id", c.ID), zap.String("topic", topic))
	go c.run(ctx)
	return c, nil
}

func (c *Conn) Events() <-chan gamedto.Event { return c.out }

// Close tears the stream down; only the first call (or ctx cancellation) acts.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.sub.Close()
		if c.PlayerID != "" && c.g.reaper != nil {
			ctx, cancel := context.WithTimeout(context.Background(), reapTimeout)
			defer cancel()
			if err := c.g.reaper.OnDisconnect(ctx, c.PlayerID); err != nil {
				obslog.L().Warn("stream_reap_error", zap.String("conn_id", c.ID), zap.String("player_id", c.PlayerID), zap.Error(err))
			}
		}
		obslog.L().Info("stream_close", zap.String("conn_id", c.ID), zap.String("player_id", c.PlayerID), zap.String("game_id", c.GameID))
	})
}

func (c *Conn) run(ctx context.Context) {
	defer close(c.out)
	ticker := time.NewTicker(c.g.keepalive)
	defer ticker.Stop()

	if !c.send(gamedto.Keepalive()) {
		return
	}
	in := c.sub.Events()
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-c.done:
			return
		case ev, ok := <-in:
			if !ok {
				// bus connection lost; the client reconnects and re-syncs
				c.Close()
				return
			}
			if !c.send(ev) {
				return
			}
		case <-ticker.C:
			if !c.send(gamedto.Keepalive()) {
				return
			}
		}
	}
}

func (c *Conn) send(ev gamedto.Event) bool {
	select {
	case c.out <- ev:
		return true
	case <-c.done:
		return false
	}
}
