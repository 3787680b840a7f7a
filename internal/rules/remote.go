package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/park285/cheese-matchd/internal/httpc"
	"github.com/park285/cheese-matchd/pkg/gamedto"
	"github.com/valyala/fasthttp"
)

type validateRequest struct {
	FEN  string       `json:"fen"`
	Move gamedto.Move `json:"move"`
}

// RemoteEngine calls an external rules service: POST {base}/validate with
// {fen, move} answering an Outcome document.
type RemoteEngine struct {
	c *httpc.Client
}

func NewRemoteEngine(baseURL string, timeout time.Duration) *RemoteEngine {
	return &RemoteEngine{c: httpc.New(baseURL, httpc.WithTimeout(timeout), httpc.WithRetry(2))}
}

func (e *RemoteEngine) Validate(ctx context.Context, fen string, mv gamedto.Move) (Outcome, error) {
	var out Outcome
	// validation is pure, so retrying a 5xx is safe
	if err := e.c.DoJSON(ctx, fasthttp.MethodPost, "/validate", validateRequest{FEN: fen, Move: mv}, &out, true); err != nil {
		return Outcome{}, fmt.Errorf("rules engine %s: %w", e.c.BaseURL(), err)
	}
	if out.Legal && (out.FEN == "" || (out.Turn != gamedto.White && out.Turn != gamedto.Black)) {
		return Outcome{}, fmt.Errorf("rules engine %s: incomplete verdict", e.c.BaseURL())
	}
	switch out.Promotion {
	case "", "q", "r", "b", "n":
	default:
		return Outcome{}, fmt.Errorf("rules engine %s: bad promotion %q", e.c.BaseURL(), out.Promotion)
	}
	return out, nil
}
