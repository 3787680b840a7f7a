package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/park285/cheese-matchd/internal/stream"
	"github.com/park285/cheese-matchd/pkg/gamedto"
	"nhooyr.io/websocket"
)

const maxBody = 16 << 10

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v)
}

func (h *handlers) join(w http.ResponseWriter, r *http.Request) {
	var req gamedto.JoinRequest
	if err := decode(w, r, &req); err != nil || strings.TrimSpace(req.PlayerID) == "" {
		h.badRequest(w, "errors.player_required", "playerId is required")
		return
	}
	res, err := h.Queue.TryEnqueueOrMatch(r.Context(), req.PlayerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := gamedto.JoinResponse{Status: res.Status, Color: res.Color}
	if res.Session != nil {
		out.GameID = res.Session.ID
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) move(w http.ResponseWriter, r *http.Request) {
	var req gamedto.MoveRequest
	err := decode(w, r, &req)
	if err != nil || strings.TrimSpace(req.PlayerID) == "" || req.Move == nil ||
		strings.TrimSpace(req.Move.From) == "" || strings.TrimSpace(req.Move.To) == "" {
		h.badRequest(w, "errors.move_required", "playerId and move.from/move.to are required")
		return
	}
	res, err := h.Turns.ApplyMove(r.Context(), req.PlayerID, *req.Move)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gamedto.MoveResponse{OK: true, Board: res.Board, Turn: res.Turn, Terminal: res.Terminal})
}

func (h *handlers) resign(w http.ResponseWriter, r *http.Request) {
	var req gamedto.JoinRequest
	if err := decode(w, r, &req); err != nil || strings.TrimSpace(req.PlayerID) == "" {
		h.badRequest(w, "errors.player_required", "playerId is required")
		return
	}
	if err := h.Turns.Resign(r.Context(), req.PlayerID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gamedto.MoveResponse{OK: true, Terminal: true})
}

func (h *handlers) state(w http.ResponseWriter, r *http.Request) {
	pid := strings.TrimSpace(r.URL.Query().Get("playerId"))
	if pid == "" {
		h.badRequest(w, "errors.player_required", "playerId is required")
		return
	}
	view, err := h.Turns.State(r.Context(), pid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// sseStream serves SSE for a player (?playerId=) or a spectator (?gameId=).
func (h *handlers) sseStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.open(r.Context(), r)
	if err != nil {
		if errors.Is(err, gamedto.ErrInvalidArgs) {
			h.badRequest(w, "errors.game_required", "gameId or playerId is required")
			return
		}
		h.writeError(w, r, err)
		return
	}
	stream.ServeSSE(w, conn)
}

func (h *handlers) wsStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if strings.TrimSpace(q.Get("playerId")) == "" && strings.TrimSpace(q.Get("gameId")) == "" {
		h.badRequest(w, "errors.game_required", "gameId or playerId is required")
		return
	}
	opts := &websocket.AcceptOptions{CompressionMode: websocket.CompressionNoContextTakeover}
	if h.AllowedOrigin == "" || h.AllowedOrigin == "*" {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = []string{hostOf(h.AllowedOrigin)}
	}
	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		return
	}
	// CloseRead drains control frames and cancels ctx when the peer goes away
	ctx := ws.CloseRead(r.Context())
	conn, err := h.open(ctx, r)
	if err != nil {
		_, de := statusFor(err)
		_ = ws.Close(websocket.StatusInternalError, de.Code)
		return
	}
	stream.ServeWebSocket(ctx, ws, conn)
}

func (h *handlers) open(ctx context.Context, r *http.Request) (*stream.Conn, error) {
	q := r.URL.Query()
	if pid := strings.TrimSpace(q.Get("playerId")); pid != "" {
		return h.Streams.Open(ctx, pid)
	}
	if gid := strings.TrimSpace(q.Get("gameId")); gid != "" {
		return h.Streams.OpenSpectator(ctx, gid)
	}
	return nil, gamedto.ErrInvalidArgs
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if h.Redis != nil {
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func hostOf(origin string) string {
	origin = strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	return strings.TrimRight(origin, "/")
}
