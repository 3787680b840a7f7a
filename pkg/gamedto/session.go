package gamedto

import "time"

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opposite returns the other side.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// Move is a client move request in square coordinates (e.g. e2 → e4).
// Promotion is optional ("q", "r", "b", "n"); queen is assumed when omitted.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// HistoryEntry is one applied move and the position it produced.
type HistoryEntry struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	FEN       string `json:"fen"`
}

// SessionView is the state query response for a participant.
type SessionView struct {
	Status  string         `json:"status"`
	GameID  string         `json:"gameId,omitempty"`
	Color   Color          `json:"color,omitempty"`
	Board   string         `json:"board,omitempty"`
	Turn    Color          `json:"turn,omitempty"`
	Version int64          `json:"version,omitempty"`
	History []HistoryEntry `json:"history,omitempty"`
	Winner  string         `json:"winner,omitempty"`
	Updated time.Time      `json:"updatedAt,omitempty"`
}
