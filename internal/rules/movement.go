package rules

import "github.com/gungifree/gungi-server-go/internal/board"

// vector is a movement direction expressed for a side whose forward
// direction is +1 row. It is mirrored for the opposing side.
type vector struct {
	dr, dc int
}

// moveSpec is one entry of a piece type's movement table: a set of
// directions and the maximum range along each. Sliding pieces (rng > 1)
// are blocked by the first occupied cell they meet.
type moveSpec struct {
	vectors []vector
	rng     int
}

// movementTable defines how each piece type moves. Directions are relative
// to the owner's forward direction, so forward-only pieces can never move
// toward their own back rank.
var movementTable = map[board.PieceType][]moveSpec{
	board.Marshal: {
		{vectors: []vector{{1, 0}, {1, 1}, {1, -1}, {0, 1}, {0, -1}, {-1, 0}, {-1, 1}, {-1, -1}}, rng: 1},
	},
	board.General: {
		{vectors: []vector{{1, 0}, {1, 1}, {1, -1}, {0, 1}, {0, -1}, {-1, 0}, {-1, 1}, {-1, -1}}, rng: 2},
	},
	board.Lieutenant: {
		{vectors: []vector{{1, 0}, {1, 1}, {1, -1}, {0, 1}, {0, -1}, {-1, 0}}, rng: 1},
	},
	board.Major: {
		{vectors: []vector{{1, 0}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}, rng: 1},
	},
	board.Minor: {
		{vectors: []vector{{1, 0}, {1, 1}, {1, -1}}, rng: 1},
	},
	board.Shinobi: {
		{vectors: []vector{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}, rng: 2},
	},
	board.Bow: {
		{vectors: []vector{{1, 0}}, rng: 3},
		{vectors: []vector{{0, 1}, {0, -1}}, rng: 1},
	},
	board.Lance: {
		{vectors: []vector{{1, 0}}, rng: board.Rows - 1},
	},
	board.Fortress: {
		{vectors: []vector{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}, rng: 1},
	},
}

// destinations returns every cell the piece could reach on an otherwise
// legal ray: in bounds, sliding stopped by the first occupied cell (which
// is itself included so it can be contested), own-top cells excluded.
func destinations(b *board.Board, p *board.Piece) []board.Position {
	var out []board.Position
	forward := p.Owner.Forward()
	for _, spec := range movementTable[p.Type] {
		for _, v := range spec.vectors {
			dr := v.dr * forward
			dc := v.dc
			for step := 1; step <= spec.rng; step++ {
				row := p.Position.Row + dr*step
				col := p.Position.Col + dc*step
				pos := board.Position{Row: row, Col: col}
				if !pos.InBounds() {
					break
				}
				top, occupied := b.Top(row, col)
				if occupied && top.Owner == p.Owner {
					break
				}
				out = append(out, pos)
				if occupied {
					// Capture square ends the ray.
					break
				}
			}
		}
	}
	return out
}

// patternLegal reports whether moving p to (row,col) matches the piece's
// movement table against the current board. Stack capacity is checked
// separately at apply time.
func patternLegal(b *board.Board, p *board.Piece, row, col int) bool {
	for _, pos := range destinations(b, p) {
		if pos.Row == row && pos.Col == col {
			return true
		}
	}
	return false
}
