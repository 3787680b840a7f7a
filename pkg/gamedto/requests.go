package gamedto

// Join statuses.
const (
	JoinWaiting        = "waiting"
	JoinMatched        = "matched"
	JoinAlreadyPlaying = "alreadyPlaying"
)

type JoinRequest struct {
	PlayerID string `json:"playerId"`
}

type JoinResponse struct {
	Status string `json:"status"`
	GameID string `json:"gameId,omitempty"`
	Color  Color  `json:"color,omitempty"`
}

type MoveRequest struct {
	PlayerID string `json:"playerId"`
	Move     *Move  `json:"move"`
}

type MoveResponse struct {
	OK       bool   `json:"ok"`
	Board    string `json:"board,omitempty"`
	Turn     Color  `json:"turn,omitempty"`
	Terminal bool   `json:"terminal,omitempty"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}
