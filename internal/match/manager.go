package match

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gungifree/gungi-server-go/internal/board"
	"github.com/gungifree/gungi-server-go/internal/rules"
)

// Config carries the lifecycle knobs.
type Config struct {
	// AgentTimeout bounds a single ProposeMove call.
	AgentTimeout time.Duration
	// AutoplayDelay paces moves of ai_vs_ai matches. Zero plays as fast as
	// the drivers answer.
	AutoplayDelay time.Duration
	// Terminal configures win-condition detection and the ply ceiling.
	Terminal rules.TerminalConfig
}

// DefaultConfig returns the manager defaults used when no configuration is
// supplied.
func DefaultConfig() Config {
	return Config{
		AgentTimeout: 5 * time.Second,
		Terminal:     rules.DefaultTerminalConfig(),
	}
}

// CreateSpec describes the match to create.
type CreateSpec struct {
	Type         Type
	Participants map[board.Side]string
	// Agents supplies the drivers for autonomous sides. Required for the
	// unbound side of human_vs_ai and both sides of ai_vs_ai.
	Agents map[board.Side]AgentDriver
}

// MoveObserver receives the snapshot of every committed move, whether it
// was submitted by a participant or proposed by an agent driver.
type MoveObserver func(snap Snapshot)

// Manager drives the match lifecycle. Per-match operations are serialized
// by the match's own mutex; the manager itself holds no global lock across
// operations, so distinct matches never contend.
type Manager struct {
	registry *Registry
	store    MatchStore
	settler  SettlementNotifier
	cfg      Config
	logger   *zap.Logger

	agMu   sync.RWMutex
	agents map[string]map[board.Side]AgentDriver

	obsMu     sync.RWMutex
	observers []MoveObserver
}

// NewManager creates a lifecycle manager. store and settler may be nil;
// persistence and settlement are then skipped.
func NewManager(registry *Registry, store MatchStore, settler SettlementNotifier, cfg Config, logger *zap.Logger) *Manager {
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = DefaultConfig().AgentTimeout
	}
	if cfg.Terminal.WinCondition == "" {
		cfg.Terminal = rules.DefaultTerminalConfig()
	}
	return &Manager{
		registry: registry,
		store:    store,
		settler:  settler,
		cfg:      cfg,
		logger:   logger,
		agents:   make(map[string]map[board.Side]AgentDriver),
	}
}

// Create builds a pending match and registers it atomically: no caller can
// observe a partially registered match.
func (mgr *Manager) Create(spec CreateSpec) (*Match, error) {
	m := newMatch(spec.Type)
	for side, participant := range spec.Participants {
		m.Participants[side] = participant
	}
	if err := mgr.registry.Register(m); err != nil {
		return nil, err
	}
	if len(spec.Agents) > 0 {
		mgr.setAgents(m.ID, spec.Agents)
	}

	mgr.logger.Info("match created",
		zap.String("match_id", m.ID),
		zap.String("type", string(m.Type)),
		zap.Int("participants", len(m.Participants)),
	)
	mgr.persist(m)
	return m, nil
}

// Get returns a match by identifier.
func (mgr *Manager) Get(id string) (*Match, error) {
	m, ok := mgr.registry.Get(id)
	if !ok {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

// ListActive returns up to limit active matches.
func (mgr *Manager) ListActive(limit int) []*Match {
	return mgr.registry.ListActive(limit)
}

// Start transitions a match to active. Concurrent calls on the same match
// yield exactly one success; the rest fail with ErrAlreadyStarted. For
// ai_vs_ai matches, autonomous play is scheduled immediately.
func (mgr *Manager) Start(ctx context.Context, id string) (*Match, error) {
	m, ok := mgr.registry.Get(id)
	if !ok {
		return nil, ErrMatchNotFound
	}

	// A side may be unbound only if an agent driver covers it.
	for _, side := range []board.Side{board.SideBlack, board.SideWhite} {
		if _, bound := m.Participant(side); bound {
			continue
		}
		if _, hasAgent := mgr.agentFor(m.ID, side); !hasAgent {
			return nil, fmt.Errorf("%w: %s", ErrSideNotBound, side)
		}
	}

	if err := m.start(false); err != nil {
		return nil, err
	}

	mgr.logger.Info("match started",
		zap.String("match_id", m.ID),
		zap.String("type", string(m.Type)),
	)
	mgr.persist(m)

	if m.Type == TypeAIVsAI {
		go mgr.runAutoplay(ctx, m)
	}
	return m, nil
}

// OnMoveApplied registers an observer invoked after each committed move.
// Observers run outside the per-match lock, in registration order.
func (mgr *Manager) OnMoveApplied(obs MoveObserver) {
	mgr.obsMu.Lock()
	mgr.observers = append(mgr.observers, obs)
	mgr.obsMu.Unlock()
}

func (mgr *Manager) notifyMove(snap Snapshot) {
	mgr.obsMu.RLock()
	observers := make([]MoveObserver, len(mgr.observers))
	copy(observers, mgr.observers)
	mgr.obsMu.RUnlock()
	for _, obs := range observers {
		obs(snap)
	}
}

// SubmitMove applies one move for side. Validation and board mutation run
// under the match mutex, so moves apply in arrival order and never
// interleave with Start or autonomous play on the same match. Persistence
// and observer notification happen after the lock is released; store
// latency never blocks the match.
func (mgr *Manager) SubmitMove(ctx context.Context, id string, side board.Side, mv rules.Move) (Snapshot, error) {
	m, ok := mgr.registry.Get(id)
	if !ok {
		return Snapshot{}, ErrMatchNotFound
	}

	m.mu.Lock()
	snap, err := mgr.applyLocked(m, side, mv)
	m.mu.Unlock()
	if err != nil {
		return snap, err
	}
	mgr.afterMove(ctx, snap)

	// In a human_vs_ai match the agent answers as soon as its side is to
	// move. The reply runs asynchronously so the caller gets the board
	// with the human move applied, not the agent's response.
	if m.Type == TypeHumanVsAI && snap.Status == StatusActive {
		if _, ok := mgr.agentFor(m.ID, snap.CurrentSide); ok {
			go mgr.playAgentTurn(ctx, m)
		}
	}
	return snap, nil
}

// applyLocked performs the validated move under m.mu and returns the
// resulting snapshot.
func (mgr *Manager) applyLocked(m *Match, side board.Side, mv rules.Move) (Snapshot, error) {
	if m.Status != StatusActive {
		return Snapshot{}, ErrMatchNotActive
	}
	if side != m.CurrentSide {
		return Snapshot{}, &rules.MoveError{
			Code:   rules.CodeNotYourTurn,
			Detail: m.CurrentSide.String() + " to move",
		}
	}

	if mv.Timestamp.IsZero() {
		mv.Timestamp = time.Now().UTC()
	}
	if _, err := rules.ApplyMove(m.Board, mv, side); err != nil {
		return Snapshot{}, err
	}

	m.MoveHistory = append(m.MoveHistory, mv)
	m.CurrentSide = m.CurrentSide.Opponent()
	m.UpdatedAt = time.Now().UTC()

	if outcome := rules.Evaluate(m.Board, m.CurrentSide, len(m.MoveHistory), mgr.cfg.Terminal); outcome.Terminal() {
		var winner *board.Side
		if outcome.Kind == rules.OutcomeWin {
			w := outcome.Winner
			winner = &w
		}
		m.finishLocked(StatusCompleted, winner, outcome.Reason)
		mgr.logger.Info("match completed",
			zap.String("match_id", m.ID),
			zap.String("outcome", outcome.Kind.String()),
			zap.String("reason", outcome.Reason),
			zap.Int("moves", len(m.MoveHistory)),
		)
	}
	return m.snapshotLocked(), nil
}

// afterMove handles observer notification, persistence, and settlement
// once a move is committed. It must be called without m.mu held. Failures
// here never affect the already-updated match.
func (mgr *Manager) afterMove(ctx context.Context, snap Snapshot) {
	mgr.notifyMove(snap)
	mgr.persistSnapshot(snap)
	if snap.Status == StatusCompleted && mgr.settler != nil {
		winner := ""
		if snap.Winner != nil {
			winner = snap.Winner.String()
		}
		go func() {
			if err := mgr.settler.MatchCompleted(context.WithoutCancel(ctx), snap.ID, winner); err != nil {
				mgr.logger.Error("settlement notification failed",
					zap.String("match_id", snap.ID),
					zap.Error(err),
				)
			}
		}()
	}
}

// Cancel force-finishes a match as cancelled.
func (mgr *Manager) Cancel(id, reason string) error {
	m, ok := mgr.registry.Get(id)
	if !ok {
		return ErrMatchNotFound
	}
	m.mu.Lock()
	if m.Status == StatusCompleted || m.Status == StatusCancelled {
		m.mu.Unlock()
		return ErrMatchNotActive
	}
	m.finishLocked(StatusCancelled, nil, reason)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	mgr.logger.Info("match cancelled",
		zap.String("match_id", id),
		zap.String("reason", reason),
	)
	mgr.persistSnapshot(snap)
	return nil
}

// Recover repopulates the registry from the persistence collaborator.
// Called once at startup.
func (mgr *Manager) Recover(ctx context.Context) (int, error) {
	if mgr.store == nil {
		return 0, nil
	}
	snaps, err := mgr.store.ListRecoverable(ctx)
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, snap := range snaps {
		m := restoreMatch(snap)
		if err := mgr.registry.Register(m); err != nil {
			mgr.logger.Warn("skipping recoverable match",
				zap.String("match_id", snap.ID),
				zap.Error(err),
			)
			continue
		}
		recovered++
	}
	if recovered > 0 {
		mgr.logger.Info("matches recovered from store", zap.Int("count", recovered))
	}
	return recovered, nil
}

func (mgr *Manager) persist(m *Match) {
	mgr.persistSnapshot(m.Snapshot())
}

func (mgr *Manager) persistSnapshot(snap Snapshot) {
	if mgr.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mgr.store.SaveMatch(ctx, snap); err != nil {
		mgr.logger.Error("failed to persist match",
			zap.String("match_id", snap.ID),
			zap.Error(err),
		)
	}
}

func (mgr *Manager) setAgents(matchID string, agents map[board.Side]AgentDriver) {
	mgr.agMu.Lock()
	defer mgr.agMu.Unlock()
	bound := make(map[board.Side]AgentDriver, len(agents))
	for side, driver := range agents {
		bound[side] = driver
	}
	mgr.agents[matchID] = bound
}

func (mgr *Manager) agentFor(matchID string, side board.Side) (AgentDriver, bool) {
	mgr.agMu.RLock()
	defer mgr.agMu.RUnlock()
	drivers, ok := mgr.agents[matchID]
	if !ok {
		return nil, false
	}
	driver, ok := drivers[side]
	return driver, ok
}
