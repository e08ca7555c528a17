package board

import "fmt"

// setupEntry places one piece relative to a side's own ranks: rank 0 is the
// side's back rank, rank 2 its front rank.
type setupEntry struct {
	rank int
	col  int
	typ  PieceType
}

// standardSetup is the fixed opening arrangement for one side. The other
// side receives the mirror image.
var standardSetup = []setupEntry{
	{0, 0, Lance},
	{0, 2, Shinobi},
	{0, 3, Bow},
	{0, 4, Marshal},
	{0, 5, Bow},
	{0, 6, Shinobi},
	{0, 8, Lance},
	{1, 1, Fortress},
	{1, 2, Major},
	{1, 4, General},
	{1, 6, Major},
	{1, 7, Fortress},
	{2, 3, Minor},
	{2, 4, Lieutenant},
	{2, 5, Minor},
}

// NewStandard builds a board with the fixed standard setup for both sides.
// Piece IDs are deterministic so replays and tests can reference them.
func NewStandard() *Board {
	b := New()
	for _, side := range []Side{SideBlack, SideWhite} {
		counts := map[PieceType]int{}
		for _, e := range standardSetup {
			row := e.rank
			col := e.col
			if side == SideWhite {
				row = Rows - 1 - e.rank
				col = Cols - 1 - e.col
			}
			counts[e.typ]++
			p := &Piece{
				ID:    fmt.Sprintf("%s-%s-%d", side, e.typ, counts[e.typ]),
				Type:  e.typ,
				Owner: side,
			}
			// Setup never exceeds one piece per cell, so Push cannot fail.
			if err := b.Push(p, row, col); err != nil {
				panic(fmt.Sprintf("invalid standard setup: %v", err))
			}
		}
	}
	return b
}
