package match

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gungifree/gungi-server-go/internal/board"
	"github.com/gungifree/gungi-server-go/internal/rules"
)

// runAutoplay drives an ai_vs_ai match to completion: it alternately asks
// the configured driver of the side to move for a move, applies it through
// the rules engine, and loops until a terminal signal, the ply ceiling, or
// a driver failure. Each iteration takes the match mutex only for the
// apply; the driver is consulted on a board clone outside any lock so a
// slow agent never blocks registry readers.
func (mgr *Manager) runAutoplay(ctx context.Context, m *Match) {
	logger := mgr.logger.With(zap.String("match_id", m.ID))
	logger.Info("autonomous play started")

	for {
		if ctx.Err() != nil {
			_ = mgr.Cancel(m.ID, "server shutting down")
			return
		}
		if !mgr.stepAgent(ctx, m, logger) {
			return
		}
		if mgr.cfg.AutoplayDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(mgr.cfg.AutoplayDelay):
			}
		}
	}
}

// playAgentTurn runs a single autonomous turn. Scheduled after a human move
// in a human_vs_ai match when the agent's side is now to move.
func (mgr *Manager) playAgentTurn(ctx context.Context, m *Match) {
	mgr.stepAgent(ctx, m, mgr.logger.With(zap.String("match_id", m.ID)))
}

// stepAgent asks the driver of the side to move for one move and applies it.
// Returns true when the match is still active and another step may follow.
func (mgr *Manager) stepAgent(ctx context.Context, m *Match, logger *zap.Logger) bool {
	m.mu.Lock()
	if m.Status != StatusActive {
		m.mu.Unlock()
		return false
	}
	side := m.CurrentSide
	boardClone := m.Board.Clone()
	history := make([]rules.Move, len(m.MoveHistory))
	copy(history, m.MoveHistory)
	m.mu.Unlock()

	driver, ok := mgr.agentFor(m.ID, side)
	if !ok {
		logger.Error("no agent driver for side", zap.String("side", side.String()))
		_ = mgr.Cancel(m.ID, "missing agent driver for "+side.String())
		return false
	}

	proposeCtx, cancel := context.WithTimeout(ctx, mgr.cfg.AgentTimeout)
	mv, err := driver.ProposeMove(proposeCtx, boardClone, side, history)
	cancel()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("agent driver timed out", zap.String("side", side.String()))
		_ = mgr.Cancel(m.ID, ErrAgentTimeout.Error())
		return false
	case errors.Is(err, ErrNoLegalMoves):
		// Terminal evaluation on the next apply would catch this too,
		// but the driver has nothing to submit; let Evaluate decide.
		logger.Info("agent reports no legal moves", zap.String("side", side.String()))
		return false
	case err != nil:
		logger.Error("agent driver failed", zap.Error(err))
		_ = mgr.Cancel(m.ID, "agent driver failure")
		return false
	}

	m.mu.Lock()
	snap, err := mgr.applyLocked(m, side, mv)
	m.mu.Unlock()
	if err != nil {
		// The proposal was generated against a clone of the same
		// serialized state, so a rejection means a defective driver.
		logger.Error("agent proposed illegal move", zap.Error(err))
		_ = mgr.Cancel(m.ID, "agent proposed illegal move")
		return false
	}
	mgr.afterMove(ctx, snap)

	return snap.Status == StatusActive
}

// restoreMatch rebuilds a match entity from a stored snapshot. A board that
// fails to reconstruct leaves the match cancelled rather than half-restored.
func restoreMatch(snap Snapshot) *Match {
	m := &Match{
		ID:           snap.ID,
		Type:         snap.Type,
		Status:       snap.Status,
		Participants: make(map[board.Side]string, len(snap.Participants)),
		MoveHistory:  append([]rules.Move(nil), snap.MoveHistory...),
		CurrentSide:  snap.CurrentSide,
		Reason:       snap.Reason,
		CreatedAt:    snap.CreatedAt,
		UpdatedAt:    snap.UpdatedAt,
	}
	for side, id := range snap.Participants {
		m.Participants[side] = id
	}
	if snap.Winner != nil {
		w := *snap.Winner
		m.Winner = &w
	}
	b, err := board.FromView(snap.Board)
	if err != nil {
		m.Board = board.New()
		m.Status = StatusCancelled
		m.Reason = "unrecoverable board state"
		return m
	}
	m.Board = b
	return m
}
