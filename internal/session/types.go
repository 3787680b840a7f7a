package session

import (
	"time"

	"github.com/park285/cheese-matchd/pkg/gamedto"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Session is the persisted state of a live match, stored as JSON under game:{id}.
type Session struct {
	ID            string                 `json:"id"`
	White         string                 `json:"white"`
	Black         string                 `json:"black"`
	Board         string                 `json:"board"`
	Turn          gamedto.Color          `json:"turn"`
	Status        Status                 `json:"status"`
	Version       int64                  `json:"version"`
	History       []gamedto.HistoryEntry `json:"history"`
	CreatedAt     time.Time              `json:"createdAt"`
	LastMutatedAt time.Time              `json:"lastMutatedAt"`
	Winner        string                 `json:"winner,omitempty"`
}

// New returns an active session at the starting position with version 1.
func New(id, white, black string, now time.Time) *Session {
	return &Session{
		ID:            id,
		White:         white,
		Black:         black,
		Board:         StartFEN,
		Turn:          gamedto.White,
		Status:        StatusActive,
		Version:       1,
		History:       []gamedto.HistoryEntry{},
		CreatedAt:     now,
		LastMutatedAt: now,
	}
}

// ColorOf reports which side playerID plays.
func (s *Session) ColorOf(playerID string) (gamedto.Color, bool) {
	switch playerID {
	case "":
		return "", false
	case s.White:
		return gamedto.White, true
	case s.Black:
		return gamedto.Black, true
	}
	return "", false
}

// PlayerFor returns the player holding color c.
func (s *Session) PlayerFor(c gamedto.Color) string {
	if c == gamedto.White {
		return s.White
	}
	return s.Black
}

// Opponent returns the other participant, or "" when playerID is not seated.
func (s *Session) Opponent(playerID string) string {
	c, ok := s.ColorOf(playerID)
	if !ok {
		return ""
	}
	return s.PlayerFor(c.Opposite())
}

// Players returns both participants, white first.
func (s *Session) Players() []string { return []string{s.White, s.Black} }

// Clone returns a deep copy; History is append-only so the copy gets its own backing array.
func (s *Session) Clone() *Session {
	out := *s
	out.History = append(make([]gamedto.HistoryEntry, 0, len(s.History)+1), s.History...)
	return &out
}

// View renders the state query response from playerID's perspective.
func (s *Session) View(playerID string) gamedto.SessionView {
	color, _ := s.ColorOf(playerID)
	return gamedto.SessionView{
		Status:  string(s.Status),
		GameID:  s.ID,
		Color:   color,
		Board:   s.Board,
		Turn:    s.Turn,
		Version: s.Version,
		History: append([]gamedto.HistoryEntry(nil), s.History...),
		Winner:  s.Winner,
		Updated: s.LastMutatedAt,
	}
}
