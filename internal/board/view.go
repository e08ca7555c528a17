package board

import "fmt"

// PieceView is the wire representation of a placed or captured piece.
type PieceView struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Owner string `json:"owner"`
	Row   int    `json:"row"`
	Col   int    `json:"col"`
	Tier  int    `json:"tier"`
}

// View is a serializable snapshot of the whole board. Cells holds the
// bottom-to-top stack of every cell; empty cells are nil.
type View struct {
	Cells    [Rows][Cols][]PieceView `json:"cells"`
	Captures []PieceView             `json:"captures"`
}

func pieceView(p *Piece) PieceView {
	return PieceView{
		ID:    p.ID,
		Type:  p.Type.String(),
		Owner: p.Owner.String(),
		Row:   p.Position.Row,
		Col:   p.Position.Col,
		Tier:  p.Position.Tier,
	}
}

// FromView reconstructs a board from its wire representation. Used to
// recover matches from the persistence collaborator.
func FromView(v View) (*Board, error) {
	b := New()
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			for _, pv := range v.Cells[r][c] {
				typ, ok := ParsePieceType(pv.Type)
				if !ok {
					return nil, fmt.Errorf("unknown piece type %q", pv.Type)
				}
				owner, ok := ParseSide(pv.Owner)
				if !ok {
					return nil, fmt.Errorf("unknown side %q", pv.Owner)
				}
				if err := b.Push(&Piece{ID: pv.ID, Type: typ, Owner: owner}, r, c); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, pv := range v.Captures {
		typ, ok := ParsePieceType(pv.Type)
		if !ok {
			return nil, fmt.Errorf("unknown piece type %q", pv.Type)
		}
		owner, ok := ParseSide(pv.Owner)
		if !ok {
			return nil, fmt.Errorf("unknown side %q", pv.Owner)
		}
		b.captures = append(b.captures, &Piece{
			ID:       pv.ID,
			Type:     typ,
			Owner:    owner,
			Position: Position{Row: pv.Row, Col: pv.Col, Tier: pv.Tier},
		})
	}
	return b, nil
}

// Snapshot renders the board into its wire representation.
func (b *Board) Snapshot() View {
	var v View
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			stack := b.cells[r][c]
			if len(stack) == 0 {
				continue
			}
			views := make([]PieceView, len(stack))
			for i, p := range stack {
				views[i] = pieceView(p)
			}
			v.Cells[r][c] = views
		}
	}
	for _, p := range b.captures {
		v.Captures = append(v.Captures, pieceView(p))
	}
	return v
}
