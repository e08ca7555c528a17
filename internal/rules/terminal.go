package rules

import (
	"fmt"

	"github.com/gungifree/gungi-server-go/internal/board"
)

// WinCondition selects the primary terminal rule. The exact rule is
// configurable; Checkmate is the default.
type WinCondition string

const (
	// WinByCheckmate ends the match when the side to move has its Marshal
	// attacked and no legal move escapes the attack.
	WinByCheckmate WinCondition = "checkmate"
	// WinByCapture ends the match only once the Marshal has actually been
	// captured.
	WinByCapture WinCondition = "capture"
)

// TerminalConfig bounds and configures terminal detection.
type TerminalConfig struct {
	WinCondition WinCondition
	// MaxPly draws the match once the total move count reaches the limit.
	// Zero disables the ceiling.
	MaxPly int
}

// DefaultTerminalConfig mirrors the server defaults.
func DefaultTerminalConfig() TerminalConfig {
	return TerminalConfig{WinCondition: WinByCheckmate, MaxPly: 500}
}

// OutcomeKind describes the terminal signal category.
type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	OutcomeWin
	OutcomeDraw
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNone:
		return "NONE"
	case OutcomeWin:
		return "WIN"
	case OutcomeDraw:
		return "DRAW"
	default:
		return fmt.Sprintf("OUTCOME_%d", int(k))
	}
}

// Outcome is the terminal signal consumed by the lifecycle manager. The
// rules engine only reports; it never mutates match state.
type Outcome struct {
	Kind   OutcomeKind
	Winner board.Side // valid when Kind == OutcomeWin
	Reason string
}

// Terminal reports whether the outcome ends the match.
func (o Outcome) Terminal() bool {
	return o.Kind != OutcomeNone
}

// marshalOf locates side's command piece anywhere on the grid.
func marshalOf(b *board.Board, side board.Side) (*board.Piece, bool) {
	return b.FindPiece(func(p *board.Piece) bool {
		return p.Type == board.Marshal && p.Owner == side
	})
}

// InCheck reports whether side's Marshal sits on top of its stack and is
// reachable by an opposing piece. A buried Marshal cannot be captured and
// is therefore not in check.
func InCheck(b *board.Board, side board.Side) bool {
	m, ok := marshalOf(b, side)
	if !ok {
		return false
	}
	top, ok := b.Top(m.Position.Row, m.Position.Col)
	if !ok || top.ID != m.ID {
		return false
	}
	for _, attacker := range b.TopPieces(side.Opponent()) {
		if patternLegal(b, attacker, m.Position.Row, m.Position.Col) {
			return true
		}
	}
	return false
}

// hasEscape reports whether side has any legal move after which its Marshal
// is no longer in check. Each candidate is simulated on a clone so the live
// board is never touched.
func hasEscape(b *board.Board, side board.Side) bool {
	for _, mv := range LegalMoves(b, side) {
		sim := b.Clone()
		if _, err := ApplyMove(sim, mv, side); err != nil {
			continue
		}
		if !InCheck(sim, side) {
			return true
		}
	}
	return false
}

// Evaluate computes the terminal signal after a successful move. next is
// the side now to move, ply the total number of moves played so far.
func Evaluate(b *board.Board, next board.Side, ply int, cfg TerminalConfig) Outcome {
	if _, ok := marshalOf(b, next); !ok {
		return Outcome{Kind: OutcomeWin, Winner: next.Opponent(), Reason: "marshal captured"}
	}

	legal := LegalMoves(b, next)
	checked := InCheck(b, next)

	if cfg.WinCondition == WinByCheckmate && checked && !hasEscape(b, next) {
		return Outcome{Kind: OutcomeWin, Winner: next.Opponent(), Reason: "checkmate"}
	}
	if len(legal) == 0 {
		if checked {
			// Immobilized while attacked loses under either win condition.
			return Outcome{Kind: OutcomeWin, Winner: next.Opponent(), Reason: "no escape while in check"}
		}
		return Outcome{Kind: OutcomeDraw, Reason: "stalemate"}
	}
	if cfg.MaxPly > 0 && ply >= cfg.MaxPly {
		return Outcome{Kind: OutcomeDraw, Reason: fmt.Sprintf("ply ceiling %d reached", cfg.MaxPly)}
	}
	return Outcome{Kind: OutcomeNone}
}
