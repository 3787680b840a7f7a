package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/park285/cheese-matchd/internal/obslog"
	"github.com/park285/cheese-matchd/pkg/gamedto"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) (int, gamedto.DomainError) {
	de, ok := gamedto.AsDomain(err)
	if !ok {
		return http.StatusInternalServerError, gamedto.DomainError{Code: "internal", Message: "Internal server error"}
	}
	switch {
	case errors.Is(err, gamedto.ErrSessionNotFound):
		return http.StatusNotFound, de
	case errors.Is(err, gamedto.ErrInvalidArgs),
		errors.Is(err, gamedto.ErrSessionNotActive),
		errors.Is(err, gamedto.ErrNotYourTurn),
		errors.Is(err, gamedto.ErrIllegalMove):
		return http.StatusBadRequest, de
	case de.Retryable:
		return http.StatusServiceUnavailable, de
	}
	return http.StatusInternalServerError, de
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, de := statusFor(err)
	if status >= 500 {
		obslog.L().Warn("http_error",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeJSON(w, status, gamedto.ErrorResponse{
		Error:     h.Messages.Text("errors."+de.Code, de.Message),
		Code:      de.Code,
		Retryable: de.Retryable,
	})
}

// badRequest reports a malformed request using the message at key.
func (h *handlers) badRequest(w http.ResponseWriter, key, fallback string) {
	writeJSON(w, http.StatusBadRequest, gamedto.ErrorResponse{
		Error: h.Messages.Text(key, fallback),
		Code:  gamedto.ErrInvalidArgs.Code,
	})
}
