// Package board holds the pure data model for the 9x9 stacked board:
// sides, piece types, positions, and the per-cell piece stacks. It knows
// nothing about movement legality; that lives in the rules package.
package board

import "fmt"

const (
	// Rows and Cols define the playing grid.
	Rows = 9
	Cols = 9
	// MaxTier is the maximum stack depth of a single cell.
	MaxTier = 3
)

// Side identifies one of the two competing participants.
type Side int

const (
	SideBlack Side = iota
	SideWhite
)

func (s Side) String() string {
	switch s {
	case SideBlack:
		return "BLACK"
	case SideWhite:
		return "WHITE"
	default:
		return fmt.Sprintf("SIDE_%d", int(s))
	}
}

// Opponent returns the opposing side.
func (s Side) Opponent() Side {
	if s == SideBlack {
		return SideWhite
	}
	return SideBlack
}

// Forward returns the row delta that moves s toward the opponent's back rank.
// Black sets up on rows 0-2 and advances toward higher rows.
func (s Side) Forward() int {
	if s == SideBlack {
		return 1
	}
	return -1
}

// PieceType enumerates the fixed set of piece kinds.
type PieceType int

const (
	Marshal PieceType = iota
	General
	Lieutenant
	Major
	Minor
	Shinobi
	Bow
	Lance
	Fortress
)

var pieceTypeNames = map[PieceType]string{
	Marshal:    "MARSHAL",
	General:    "GENERAL",
	Lieutenant: "LIEUTENANT",
	Major:      "MAJOR",
	Minor:      "MINOR",
	Shinobi:    "SHINOBI",
	Bow:        "BOW",
	Lance:      "LANCE",
	Fortress:   "FORTRESS",
}

func (t PieceType) String() string {
	if name, ok := pieceTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("PIECE_%d", int(t))
}

// ParseSide maps a wire name back to a Side.
func ParseSide(name string) (Side, bool) {
	switch name {
	case "BLACK":
		return SideBlack, true
	case "WHITE":
		return SideWhite, true
	default:
		return 0, false
	}
}

// ParsePieceType maps a wire name back to a PieceType.
func ParsePieceType(name string) (PieceType, bool) {
	for t, n := range pieceTypeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// Position addresses a cell and a stacking tier within it.
type Position struct {
	Row  int `json:"row"`
	Col  int `json:"col"`
	Tier int `json:"tier"`
}

// InBounds reports whether the row/col component addresses a real cell.
// The tier is validated separately against the actual stack height.
func (p Position) InBounds() bool {
	return p.Row >= 0 && p.Row < Rows && p.Col >= 0 && p.Col < Cols
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.Row, p.Col, p.Tier)
}

// Piece is a single playing piece. While placed it is owned exclusively by
// the Board; captured pieces leave the grid but stay on the capture list so
// a finished match can be replayed.
type Piece struct {
	ID       string    `json:"id"`
	Type     PieceType `json:"type"`
	Owner    Side      `json:"owner"`
	Position Position  `json:"position"`
}

// Board is the 9x9 grid of piece stacks plus the capture list.
type Board struct {
	cells    [Rows][Cols][]*Piece
	captures []*Piece
}

// New returns an empty board with no pieces placed.
func New() *Board {
	return &Board{}
}

// StackHeight returns the number of pieces stacked on a cell. Off-grid
// cells have height zero.
func (b *Board) StackHeight(row, col int) int {
	if row < 0 || row >= Rows || col < 0 || col >= Cols {
		return 0
	}
	return len(b.cells[row][col])
}

// Top returns the top-most piece of a cell, if any. Off-grid cells are
// treated as empty.
func (b *Board) Top(row, col int) (*Piece, bool) {
	if row < 0 || row >= Rows || col < 0 || col >= Cols {
		return nil, false
	}
	stack := b.cells[row][col]
	if len(stack) == 0 {
		return nil, false
	}
	return stack[len(stack)-1], true
}

// At returns the piece at an exact (row, col, tier) address.
func (b *Board) At(pos Position) (*Piece, bool) {
	if !pos.InBounds() {
		return nil, false
	}
	stack := b.cells[pos.Row][pos.Col]
	if pos.Tier < 0 || pos.Tier >= len(stack) {
		return nil, false
	}
	return stack[pos.Tier], true
}

// Push places a piece on top of a cell's stack. The piece's position is
// updated to the tier it lands on.
func (b *Board) Push(p *Piece, row, col int) error {
	if row < 0 || row >= Rows || col < 0 || col >= Cols {
		return fmt.Errorf("push out of bounds: (%d,%d)", row, col)
	}
	stack := b.cells[row][col]
	if len(stack) >= MaxTier {
		return fmt.Errorf("stack full at (%d,%d)", row, col)
	}
	p.Position = Position{Row: row, Col: col, Tier: len(stack)}
	b.cells[row][col] = append(stack, p)
	return nil
}

// PopTop removes and returns the top piece of a cell. Returns nil for an
// empty cell.
func (b *Board) PopTop(row, col int) *Piece {
	stack := b.cells[row][col]
	if len(stack) == 0 {
		return nil
	}
	p := stack[len(stack)-1]
	b.cells[row][col] = stack[:len(stack)-1]
	return p
}

// CaptureTop removes the top piece of a cell and appends it to the capture
// list.
func (b *Board) CaptureTop(row, col int) *Piece {
	p := b.PopTop(row, col)
	if p != nil {
		b.captures = append(b.captures, p)
	}
	return p
}

// Captures returns the pieces removed from the board, in capture order.
func (b *Board) Captures() []*Piece {
	return b.captures
}

// PieceCount returns the number of pieces currently placed on the grid.
func (b *Board) PieceCount() int {
	count := 0
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			count += len(b.cells[r][c])
		}
	}
	return count
}

// TopPieces returns the top piece of every occupied cell belonging to side.
// Only top pieces may move; buried pieces are locked under their stack.
func (b *Board) TopPieces(side Side) []*Piece {
	var pieces []*Piece
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			if p, ok := b.Top(r, c); ok && p.Owner == side {
				pieces = append(pieces, p)
			}
		}
	}
	return pieces
}

// FindPiece locates a piece anywhere on the grid by predicate. Used by the
// rules engine to locate the command piece.
func (b *Board) FindPiece(match func(*Piece) bool) (*Piece, bool) {
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			for _, p := range b.cells[r][c] {
				if match(p) {
					return p, true
				}
			}
		}
	}
	return nil, false
}

// Clone returns a deep copy of the board. Piece values are copied so
// mutations of the clone never leak into the original; the rules engine
// relies on this for escape simulation.
func (b *Board) Clone() *Board {
	clone := &Board{}
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			if len(b.cells[r][c]) == 0 {
				continue
			}
			stack := make([]*Piece, len(b.cells[r][c]))
			for i, p := range b.cells[r][c] {
				cp := *p
				stack[i] = &cp
			}
			clone.cells[r][c] = stack
		}
	}
	if len(b.captures) > 0 {
		clone.captures = make([]*Piece, len(b.captures))
		for i, p := range b.captures {
			cp := *p
			clone.captures[i] = &cp
		}
	}
	return clone
}
