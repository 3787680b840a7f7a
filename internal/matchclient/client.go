// Package matchclient talks to a running matchd over HTTP and WebSocket.
package matchclient

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/park285/cheese-matchd/internal/httpc"
	"github.com/park285/cheese-matchd/pkg/gamedto"
	"github.com/valyala/fasthttp"
)

type Client struct {
	http *httpc.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	// joins and moves are not idempotent from the caller's side; no transport retry
	return &Client{http: httpc.New(baseURL, httpc.WithTimeout(timeout), httpc.WithRetry(1))}
}

func (c *Client) Join(ctx context.Context, playerID string) (*gamedto.JoinResponse, error) {
	var out gamedto.JoinResponse
	if err := c.http.DoJSON(ctx, fasthttp.MethodPost, "/api/game/join", gamedto.JoinRequest{PlayerID: playerID}, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Move(ctx context.Context, playerID string, mv gamedto.Move) (*gamedto.MoveResponse, error) {
	var out gamedto.MoveResponse
	if err := c.http.DoJSON(ctx, fasthttp.MethodPost, "/api/game/move", gamedto.MoveRequest{PlayerID: playerID, Move: &mv}, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Resign(ctx context.Context, playerID string) error {
	return c.http.DoJSON(ctx, fasthttp.MethodPost, "/api/game/resign", gamedto.JoinRequest{PlayerID: playerID}, nil, false)
}

// State is safe to retry.
func (c *Client) State(ctx context.Context, playerID string) (*gamedto.SessionView, error) {
	var out gamedto.SessionView
	if err := c.http.DoJSON(ctx, fasthttp.MethodGet, "/api/game/state?playerId="+url.QueryEscape(playerID), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamURL converts the HTTP base URL into the player's WebSocket URL.
func (c *Client) StreamURL(playerID string) (string, error) {
	u, err := url.Parse(c.http.BaseURL())
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.New("matchclient: base URL must be http(s)")
	}
	u.Path += "/api/game/ws"
	u.RawQuery = url.Values{"playerId": {playerID}}.Encode()
	return u.String(), nil
}
