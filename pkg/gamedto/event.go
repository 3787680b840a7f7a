package gamedto

import "encoding/json"

// EventType discriminates the Event union.
type EventType string

const (
	EventInitGame     EventType = "init_game"
	EventMove         EventType = "move"
	EventGameOver     EventType = "game_over"
	EventOpponentLeft EventType = "opponent_left"
	EventError        EventType = "error"
	EventKeepalive    EventType = "keepalive"
)

// Event is the frame pushed to clients: {type, payload?}.
// Payload shape depends on Type; see the constructors below.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type InitGamePayload struct {
	Color  Color  `json:"color"`
	GameID string `json:"gameId"`
}

// MovePayload carries the promotion piece (q, r, b or n) when a pawn promoted.
type MovePayload struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type GameOverPayload struct {
	Winner string `json:"winner,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func InitGame(color Color, gameID string) Event {
	return withPayload(EventInitGame, InitGamePayload{Color: color, GameID: gameID})
}

func MoveMade(from, to, promotion string) Event {
	return withPayload(EventMove, MovePayload{From: from, To: to, Promotion: promotion})
}

func GameOver(winner string) Event {
	if winner == "" {
		return Event{Type: EventGameOver}
	}
	return withPayload(EventGameOver, GameOverPayload{Winner: winner})
}

func OpponentLeft() Event { return Event{Type: EventOpponentLeft} }

func Keepalive() Event { return Event{Type: EventKeepalive} }

// Failure builds the error frame. The server reports request errors in HTTP
// responses and does not push this variant; it is kept for clients and tools
// that relay failures over the same event stream.
func Failure(message string) Event {
	return withPayload(EventError, ErrorPayload{Message: message})
}

// Decode unmarshals the payload into v. A missing payload leaves v untouched.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

func withPayload(t EventType, p any) Event {
	// payload structs above contain only strings; Marshal cannot fail
	raw, _ := json.Marshal(p)
	return Event{Type: t, Payload: raw}
}
