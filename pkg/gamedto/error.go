package gamedto

import "errors"

// DomainError is a comparable error value; errors.Is matches on equality,
// so wrapped sentinels can be detected anywhere up the stack.
type DomainError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "game service error"
}

var (
	ErrInvalidArgs      = DomainError{Code: "invalid_args", Message: "invalid arguments"}
	ErrSessionNotFound  = DomainError{Code: "session_not_found", Message: "Game not found"}
	ErrSessionNotActive = DomainError{Code: "session_not_active", Message: "Game is not active"}
	ErrNotYourTurn      = DomainError{Code: "not_your_turn", Message: "Not your turn"}
	ErrIllegalMove      = DomainError{Code: "illegal_move", Message: "Invalid move"}

	ErrVersionConflict  = DomainError{Code: "version_conflict", Message: "game was updated concurrently", Retryable: true}
	ErrQueueRace        = DomainError{Code: "queue_race", Message: "matchmaking queue is busy", Retryable: true}
	ErrStoreUnavailable = DomainError{Code: "store_unavailable", Message: "state store unavailable", Retryable: true}
	ErrRulesUnavailable = DomainError{Code: "rules_unavailable", Message: "rules engine unavailable", Retryable: true}
)

// AsDomain extracts the first DomainError in err's chain.
func AsDomain(err error) (DomainError, bool) {
	var de DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return DomainError{}, false
}
