package match

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"github.com/gungifree/gungi-server-go/internal/board"
	"github.com/gungifree/gungi-server-go/internal/rules"
)

// AgentDriver proposes moves for an autonomous side. Implementations must
// honor ctx: the lifecycle manager bounds every call with the configured
// agent timeout and cancels the match if the driver overruns it. The board
// passed in is a private clone; drivers may scribble on it freely.
type AgentDriver interface {
	ProposeMove(ctx context.Context, b *board.Board, side board.Side, history []rules.Move) (rules.Move, error)
}

// ErrNoLegalMoves is returned by drivers when the position offers nothing
// to play. The manager treats it as a terminal signal, not a failure.
var ErrNoLegalMoves = errors.New("no legal moves available")

// RandomAgent picks uniformly among the legal moves. It is the reference
// driver used for ai_vs_ai matches and tests; a fixed seed makes its games
// reproducible.
type RandomAgent struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomAgent creates a RandomAgent seeded with seed.
func NewRandomAgent(seed int64) *RandomAgent {
	return &RandomAgent{rng: rand.New(rand.NewSource(seed))}
}

// ProposeMove implements AgentDriver.
func (a *RandomAgent) ProposeMove(ctx context.Context, b *board.Board, side board.Side, history []rules.Move) (rules.Move, error) {
	if err := ctx.Err(); err != nil {
		return rules.Move{}, err
	}
	legal := rules.LegalMoves(b, side)
	if len(legal) == 0 {
		return rules.Move{}, ErrNoLegalMoves
	}
	a.mu.Lock()
	pick := a.rng.Intn(len(legal))
	a.mu.Unlock()
	return legal[pick], nil
}
