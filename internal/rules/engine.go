// Package rules implements the movement, capture, and terminal-detection
// rules for the stacked 9x9 board game. All functions are pure with respect
// to their inputs: given the same board and move they always produce the
// same result, so a finished match can be replayed exactly from its move
// history.
package rules

import (
	"time"

	"github.com/gungifree/gungi-server-go/internal/board"
)

// Move is a single recorded move. Immutable once appended to a match's
// history. A move is only valid relative to the board state it was
// generated against.
type Move struct {
	From      board.Position  `json:"from"`
	To        board.Position  `json:"to"`
	PieceType board.PieceType `json:"pieceType"`
	Timestamp time.Time       `json:"timestamp"`
}

// LegalMoves enumerates every move side can make: one entry per reachable
// destination of each of side's top pieces. Destinations whose stack is
// already at maximum depth are excluded, so every returned move is
// guaranteed to apply successfully.
func LegalMoves(b *board.Board, side board.Side) []Move {
	var moves []Move
	for _, p := range b.TopPieces(side) {
		for _, dst := range destinations(b, p) {
			height := b.StackHeight(dst.Row, dst.Col)
			if height >= board.MaxTier {
				continue
			}
			tier := height
			if height > 0 {
				// Capturing replaces the defender's tier.
				tier = height - 1
			}
			moves = append(moves, Move{
				From:      p.Position,
				To:        board.Position{Row: dst.Row, Col: dst.Col, Tier: tier},
				PieceType: p.Type,
			})
		}
	}
	return moves
}

// ApplyMove validates and applies a move for side, mutating b. On success
// it returns the captured piece, if any. Validation order is fixed; the
// first failing check wins:
//
//	NoPieceAtSource, NotYourTurn, OutOfBounds, CannotCaptureOwnPiece,
//	IllegalMovementPattern, StackFull.
func ApplyMove(b *board.Board, mv Move, side board.Side) (*board.Piece, error) {
	if !mv.From.InBounds() {
		return nil, newMoveError(CodeNoPieceAtSource, "no movable piece at %s", mv.From)
	}
	piece, ok := b.Top(mv.From.Row, mv.From.Col)
	if !ok || piece.Position.Tier != mv.From.Tier {
		return nil, newMoveError(CodeNoPieceAtSource, "no movable piece at %s", mv.From)
	}
	if piece.Owner != side {
		return nil, newMoveError(CodeNotYourTurn, "piece at %s belongs to %s", mv.From, piece.Owner)
	}
	if !mv.To.InBounds() {
		return nil, newMoveError(CodeOutOfBounds, "destination %s outside the board", mv.To)
	}
	if top, occupied := b.Top(mv.To.Row, mv.To.Col); occupied && top.Owner == side {
		return nil, newMoveError(CodeCannotCaptureOwn, "own %s on top of %s", top.Type, mv.To)
	}
	if !patternLegal(b, piece, mv.To.Row, mv.To.Col) {
		return nil, newMoveError(CodeIllegalMovement, "%s cannot reach %s from %s", piece.Type, mv.To, mv.From)
	}

	if b.StackHeight(mv.To.Row, mv.To.Col) >= board.MaxTier {
		return nil, newMoveError(CodeStackFull, "stack at %s is full", mv.To)
	}

	// Capture resolves before the attacker occupies the tier: the defender
	// leaves the stack and joins the capture list first.
	var captured *board.Piece
	if _, occupied := b.Top(mv.To.Row, mv.To.Col); occupied {
		captured = b.CaptureTop(mv.To.Row, mv.To.Col)
	}

	moved := b.PopTop(mv.From.Row, mv.From.Col)
	if moved == nil {
		// The source was validated above; an empty cell here means the
		// per-match serialization invariant was violated.
		panic("rules: source stack mutated during apply")
	}
	if err := b.Push(moved, mv.To.Row, mv.To.Col); err != nil {
		panic("rules: push failed after validation: " + err.Error())
	}
	return captured, nil
}
