// Package httpapi exposes matchmaking, moves and event streams over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/park285/cheese-matchd/internal/matchqueue"
	"github.com/park285/cheese-matchd/internal/msgcat"
	"github.com/park285/cheese-matchd/internal/stream"
	"github.com/park285/cheese-matchd/internal/turn"
	"github.com/park285/cheese-matchd/pkg/gamedto"
	"github.com/redis/go-redis/v9"
)

type Matcher interface {
	TryEnqueueOrMatch(ctx context.Context, playerID string) (*matchqueue.Result, error)
}

type Mover interface {
	ApplyMove(ctx context.Context, playerID string, mv gamedto.Move) (*turn.MoveResult, error)
	State(ctx context.Context, playerID string) (gamedto.SessionView, error)
	Resign(ctx context.Context, playerID string) error
}

type Streamer interface {
	Open(ctx context.Context, playerID string) (*stream.Conn, error)
	OpenSpectator(ctx context.Context, gameID string) (*stream.Conn, error)
}

type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

type Deps struct {
	Queue         Matcher
	Turns         Mover
	Streams       Streamer
	Redis         Pinger
	Messages      *msgcat.Catalog
	AllowedOrigin string
}

func NewRouter(d Deps) *chi.Mux {
	h := &handlers{Deps: d}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(AccessLog)
	r.Use(CORS(d.AllowedOrigin))

	r.MethodNotAllowed(h.methodNotAllowed)
	r.Get("/healthz", h.health)

	r.Route("/api/game", func(r chi.Router) {
		r.Post("/join", h.join)
		r.Post("/move", h.move)
		r.Post("/resign", h.resign)
		r.Get("/state", h.state)
		r.Get("/stream", h.sseStream)
		r.Get("/ws", h.wsStream)
	})
	return r
}

type handlers struct {
	Deps
}

func (h *handlers) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	msg, err := h.Messages.Render("errors.method_not_allowed", map[string]string{"Method": r.Method, "Path": r.URL.Path})
	if err != nil {
		msg = http.StatusText(http.StatusMethodNotAllowed)
	}
	writeJSON(w, http.StatusMethodNotAllowed, gamedto.ErrorResponse{Error: msg, Code: "method_not_allowed"})
}
