package rules

import (
	"context"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/cheese-matchd/pkg/gamedto"
)

// ChessEngine is the in-process engine.
type ChessEngine struct{}

func NewChessEngine() *ChessEngine { return &ChessEngine{} }

func (ChessEngine) Validate(ctx context.Context, fen string, mv gamedto.Move) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	from := strings.ToLower(strings.TrimSpace(mv.From))
	to := strings.ToLower(strings.TrimSpace(mv.To))
	if !isSquare(from) || !isSquare(to) {
		return Outcome{}, nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return Outcome{}, fmt.Errorf("load position: %w", err)
	}
	game := nchess.NewGame(opt)

	// the promotion piece only matters when the plain move is not legal;
	// without one a pawn reaching the last rank becomes a queen
	piece := strings.ToLower(strings.TrimSpace(mv.Promotion))
	if piece == "" {
		piece = "q"
	}
	applied := ""
	for _, uci := range []string{from + to, from + to + piece} {
		if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err == nil {
			applied = uci
			break
		}
	}
	if applied == "" {
		return Outcome{}, nil
	}

	out := Outcome{Legal: true, FEN: game.FEN(), Turn: gamedto.White, Promotion: applied[4:]}
	if game.Position().Turn() == nchess.Black {
		out.Turn = gamedto.Black
	}
	switch game.Outcome() {
	case nchess.WhiteWon:
		out.Terminal, out.Winner = true, WinnerWhite
	case nchess.BlackWon:
		out.Terminal, out.Winner = true, WinnerBlack
	case nchess.Draw:
		out.Terminal, out.Winner = true, WinnerDraw
	}
	return out, nil
}

func isSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}
