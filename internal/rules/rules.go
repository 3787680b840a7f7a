// Package rules validates moves against a chess position. The coordinator
// treats it as a pure function: position and move in, verdict out.
package rules

import (
	"context"

	"github.com/park285/cheese-matchd/pkg/gamedto"
)

// Winner values reported for a terminal position.
const (
	WinnerWhite = "white"
	WinnerBlack = "black"
	WinnerDraw  = "draw"
)

// Outcome is the verdict for one move. The other fields are meaningful only
// when Legal is true. Promotion is the piece a pawn became, if any.
type Outcome struct {
	Legal     bool          `json:"legal"`
	FEN       string        `json:"newFen,omitempty"`
	Turn      gamedto.Color `json:"turnAfter,omitempty"`
	Terminal  bool          `json:"terminal,omitempty"`
	Winner    string        `json:"winner,omitempty"`
	Promotion string        `json:"promotion,omitempty"`
}

// Engine validates mv in the position fen. An illegal move is a normal result
// (Legal=false, nil error); errors mean the engine itself could not answer.
type Engine interface {
	Validate(ctx context.Context, fen string, mv gamedto.Move) (Outcome, error)
}
