package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gungifree/gungi-server-go/internal/board"
	"github.com/gungifree/gungi-server-go/internal/rules"
)

// memStore is a minimal in-memory MatchStore for manager tests.
type memStore struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
}

func newMemStore() *memStore {
	return &memStore{snaps: make(map[string]Snapshot)}
}

func (s *memStore) SaveMatch(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.ID] = snap
	return nil
}

func (s *memStore) LoadMatch(_ context.Context, id string) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[id]
	return snap, ok, nil
}

func (s *memStore) ListRecoverable(_ context.Context) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Snapshot
	for _, snap := range s.snaps {
		if snap.Status == StatusPending || snap.Status == StatusActive {
			out = append(out, snap)
		}
	}
	return out, nil
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(NewRegistry(), nil, nil, DefaultConfig(), zap.NewNop())
}

func bothSides(participants ...string) map[board.Side]string {
	return map[board.Side]string{
		board.SideBlack: participants[0],
		board.SideWhite: participants[1],
	}
}

// Standard opening moves for deterministic turn tests.
var (
	blackOpening = rules.Move{
		From:      board.Position{Row: 2, Col: 3},
		To:        board.Position{Row: 3, Col: 3},
		PieceType: board.Minor,
	}
	whiteOpening = rules.Move{
		From:      board.Position{Row: 6, Col: 3},
		To:        board.Position{Row: 5, Col: 3},
		PieceType: board.Minor,
	}
)

func TestCreateRegistersPendingMatch(t *testing.T) {
	mgr := newTestManager(t)
	m, err := mgr.Create(CreateSpec{Type: TypeHumanVsHuman, Participants: bothSides("alice", "bob")})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, m.GetStatus())
	got, err := mgr.Get(m.ID)
	require.NoError(t, err)
	assert.Same(t, m, got)

	snap := m.Snapshot()
	assert.Equal(t, board.SideBlack, snap.CurrentSide)
	assert.Equal(t, "alice", snap.Participants[board.SideBlack])
	assert.Empty(t, snap.MoveHistory)
}

func TestGetUnknownMatch(t *testing.T) {
	mgr := newTestManager(t)
	_, err := mgr.Get("nope")
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestConcurrentCreateDistinctIDs(t *testing.T) {
	for _, n := range []int{100, 1000} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			mgr := newTestManager(t)

			ids := make(chan string, n)
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					m, err := mgr.Create(CreateSpec{Type: TypeHumanVsHuman, Participants: bothSides("a", "b")})
					if err != nil {
						t.Error(err)
						return
					}
					ids <- m.ID
				}()
			}
			wg.Wait()
			close(ids)

			seen := make(map[string]bool, n)
			for id := range ids {
				require.False(t, seen[id], "duplicate match id %s", id)
				seen[id] = true
			}
			assert.Len(t, seen, n)
		})
	}
}

func TestStartRequiresBoundSideOrAgent(t *testing.T) {
	mgr := newTestManager(t)
	m, err := mgr.Create(CreateSpec{
		Type:         TypeHumanVsHuman,
		Participants: map[board.Side]string{board.SideBlack: "alice"},
	})
	require.NoError(t, err)

	_, err = mgr.Start(context.Background(), m.ID)
	assert.ErrorIs(t, err, ErrSideNotBound)
	assert.Equal(t, StatusPending, m.GetStatus())
}

func TestConcurrentStartExactlyOneSuccess(t *testing.T) {
	mgr := newTestManager(t)
	m, err := mgr.Create(CreateSpec{Type: TypeHumanVsHuman, Participants: bothSides("a", "b")})
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	var successes, alreadyStarted int32
	var mu sync.Mutex
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Start(context.Background(), m.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrAlreadyStarted):
				alreadyStarted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	assert.Equal(t, int32(n-1), alreadyStarted)
	assert.Equal(t, StatusActive, m.GetStatus())
}

func TestSubmitMoveBeforeStart(t *testing.T) {
	mgr := newTestManager(t)
	m, err := mgr.Create(CreateSpec{Type: TypeHumanVsHuman, Participants: bothSides("a", "b")})
	require.NoError(t, err)

	_, err = mgr.SubmitMove(context.Background(), m.ID, board.SideBlack, blackOpening)
	assert.ErrorIs(t, err, ErrMatchNotActive)
}

func TestSubmitMoveTurnAlternation(t *testing.T) {
	mgr := newTestManager(t)
	m, err := mgr.Create(CreateSpec{Type: TypeHumanVsHuman, Participants: bothSides("a", "b")})
	require.NoError(t, err)
	_, err = mgr.Start(context.Background(), m.ID)
	require.NoError(t, err)

	snap, err := mgr.SubmitMove(context.Background(), m.ID, board.SideBlack, blackOpening)
	require.NoError(t, err)
	assert.Equal(t, board.SideWhite, snap.CurrentSide)
	assert.Len(t, snap.MoveHistory, 1)

	// Black again out of turn.
	_, err = mgr.SubmitMove(context.Background(), m.ID, board.SideBlack, blackOpening)
	assert.Equal(t, rules.CodeNotYourTurn, rules.CodeOf(err))

	snap, err = mgr.SubmitMove(context.Background(), m.ID, board.SideWhite, whiteOpening)
	require.NoError(t, err)
	assert.Equal(t, board.SideBlack, snap.CurrentSide)
	assert.Len(t, snap.MoveHistory, 2)
	assert.False(t, snap.MoveHistory[0].Timestamp.IsZero())
}

func TestSubmitMoveRejectionLeavesHistoryUntouched(t *testing.T) {
	mgr := newTestManager(t)
	m, err := mgr.Create(CreateSpec{Type: TypeHumanVsHuman, Participants: bothSides("a", "b")})
	require.NoError(t, err)
	_, err = mgr.Start(context.Background(), m.ID)
	require.NoError(t, err)

	bad := rules.Move{
		From:      board.Position{Row: 2, Col: 3},
		To:        board.Position{Row: 7, Col: 7},
		PieceType: board.Minor,
	}
	_, err = mgr.SubmitMove(context.Background(), m.ID, board.SideBlack, bad)
	assert.Equal(t, rules.CodeIllegalMovement, rules.CodeOf(err))

	snap := m.Snapshot()
	assert.Empty(t, snap.MoveHistory)
	assert.Equal(t, board.SideBlack, snap.CurrentSide)
}

func TestConcurrentSameSideSubmits(t *testing.T) {
	mgr := newTestManager(t)
	m, err := mgr.Create(CreateSpec{Type: TypeHumanVsHuman, Participants: bothSides("a", "b")})
	require.NoError(t, err)
	_, err = mgr.Start(context.Background(), m.ID)
	require.NoError(t, err)

	moves := []rules.Move{
		blackOpening,
		{
			From:      board.Position{Row: 2, Col: 5},
			To:        board.Position{Row: 3, Col: 5},
			PieceType: board.Minor,
		},
	}

	var wg sync.WaitGroup
	results := make(chan error, len(moves))
	for _, mv := range moves {
		wg.Add(1)
		go func(mv rules.Move) {
			defer wg.Done()
			_, err := mgr.SubmitMove(context.Background(), m.ID, board.SideBlack, mv)
			results <- err
		}(mv)
	}
	wg.Wait()
	close(results)

	var ok, rejected int
	for err := range results {
		if err == nil {
			ok++
			continue
		}
		require.Equal(t, rules.CodeNotYourTurn, rules.CodeOf(err))
		rejected++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
	assert.Len(t, m.Snapshot().MoveHistory, 1)
}

func TestHumanVsAIEndToEnd(t *testing.T) {
	mgr := newTestManager(t)
	m, err := mgr.Create(CreateSpec{
		Type:         TypeHumanVsAI,
		Participants: map[board.Side]string{board.SideBlack: "alice"},
		Agents:       map[board.Side]AgentDriver{board.SideWhite: NewRandomAgent(1)},
	})
	require.NoError(t, err)
	_, err = mgr.Start(context.Background(), m.ID)
	require.NoError(t, err)

	snap, err := mgr.SubmitMove(context.Background(), m.ID, board.SideBlack, blackOpening)
	require.NoError(t, err)
	// The caller sees the board right after the human move.
	assert.Len(t, snap.MoveHistory, 1)
	assert.Equal(t, board.SideWhite, snap.CurrentSide)

	// The agent answers asynchronously.
	require.Eventually(t, func() bool {
		s := m.Snapshot()
		return len(s.MoveHistory) == 2 && s.CurrentSide == board.SideBlack
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMoveObserverReceivesCommittedMoves(t *testing.T) {
	mgr := newTestManager(t)
	var mu sync.Mutex
	var seen []int
	mgr.OnMoveApplied(func(snap Snapshot) {
		mu.Lock()
		seen = append(seen, len(snap.MoveHistory))
		mu.Unlock()
	})

	m, err := mgr.Create(CreateSpec{Type: TypeHumanVsHuman, Participants: bothSides("a", "b")})
	require.NoError(t, err)
	_, err = mgr.Start(context.Background(), m.ID)
	require.NoError(t, err)

	_, err = mgr.SubmitMove(context.Background(), m.ID, board.SideBlack, blackOpening)
	require.NoError(t, err)
	_, err = mgr.SubmitMove(context.Background(), m.ID, board.SideWhite, whiteOpening)
	require.NoError(t, err)

	// Rejected moves never notify.
	_, err = mgr.SubmitMove(context.Background(), m.ID, board.SideWhite, whiteOpening)
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, seen)
}

func TestMoveObserverCoversAgentMoves(t *testing.T) {
	mgr := newTestManager(t)
	notified := make(chan int, 4)
	mgr.OnMoveApplied(func(snap Snapshot) { notified <- len(snap.MoveHistory) })

	m, err := mgr.Create(CreateSpec{
		Type:         TypeHumanVsAI,
		Participants: map[board.Side]string{board.SideBlack: "alice"},
		Agents:       map[board.Side]AgentDriver{board.SideWhite: NewRandomAgent(1)},
	})
	require.NoError(t, err)
	_, err = mgr.Start(context.Background(), m.ID)
	require.NoError(t, err)

	_, err = mgr.SubmitMove(context.Background(), m.ID, board.SideBlack, blackOpening)
	require.NoError(t, err)

	next := func() int {
		select {
		case n := <-notified:
			return n
		case <-time.After(2 * time.Second):
			t.Fatal("move notification never arrived")
			return 0
		}
	}
	assert.Equal(t, 1, next())
	assert.Equal(t, 2, next())
}

// gateStore blocks SaveMatch on demand so tests can observe what the
// manager keeps locked while a save is in flight.
type gateStore struct {
	mu       sync.Mutex
	blocking bool
	entered  chan struct{}
	release  chan struct{}
}

func (s *gateStore) SaveMatch(context.Context, Snapshot) error {
	s.mu.Lock()
	blocking := s.blocking
	s.mu.Unlock()
	if blocking {
		s.entered <- struct{}{}
		<-s.release
	}
	return nil
}

func (s *gateStore) LoadMatch(context.Context, string) (Snapshot, bool, error) {
	return Snapshot{}, false, nil
}

func (s *gateStore) ListRecoverable(context.Context) ([]Snapshot, error) {
	return nil, nil
}

func (s *gateStore) setBlocking(b bool) {
	s.mu.Lock()
	s.blocking = b
	s.mu.Unlock()
}

func TestSubmitMovePersistsOutsideMatchLock(t *testing.T) {
	store := &gateStore{entered: make(chan struct{}), release: make(chan struct{})}
	mgr := NewManager(NewRegistry(), store, nil, DefaultConfig(), zap.NewNop())

	m, err := mgr.Create(CreateSpec{Type: TypeHumanVsHuman, Participants: bothSides("a", "b")})
	require.NoError(t, err)
	_, err = mgr.Start(context.Background(), m.ID)
	require.NoError(t, err)

	store.setBlocking(true)
	submitted := make(chan error, 1)
	go func() {
		_, err := mgr.SubmitMove(context.Background(), m.ID, board.SideBlack, blackOpening)
		submitted <- err
	}()
	<-store.entered

	// The save is in flight; the match itself must stay readable.
	snapped := make(chan Snapshot, 1)
	go func() { snapped <- m.Snapshot() }()
	select {
	case snap := <-snapped:
		assert.Len(t, snap.MoveHistory, 1)
	case <-time.After(time.Second):
		t.Fatal("match locked while the store save was in flight")
	}

	close(store.release)
	require.NoError(t, <-submitted)
}

func TestAIVsAIPlaysToTerminal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Terminal.MaxPly = 40
	mgr := NewManager(NewRegistry(), nil, nil, cfg, zap.NewNop())

	m, err := mgr.Create(CreateSpec{
		Type: TypeAIVsAI,
		Agents: map[board.Side]AgentDriver{
			board.SideBlack: NewRandomAgent(7),
			board.SideWhite: NewRandomAgent(11),
		},
	})
	require.NoError(t, err)
	_, err = mgr.Start(context.Background(), m.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s := m.GetStatus()
		return s == StatusCompleted || s == StatusCancelled
	}, 10*time.Second, 20*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.NotEmpty(t, snap.Reason)
	assert.LessOrEqual(t, len(snap.MoveHistory), 40)
}

func TestAgentTimeoutCancelsMatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AgentTimeout = 20 * time.Millisecond
	mgr := NewManager(NewRegistry(), nil, nil, cfg, zap.NewNop())

	stall := agentFunc(func(ctx context.Context, _ *board.Board, _ board.Side, _ []rules.Move) (rules.Move, error) {
		<-ctx.Done()
		return rules.Move{}, ctx.Err()
	})
	m, err := mgr.Create(CreateSpec{
		Type: TypeAIVsAI,
		Agents: map[board.Side]AgentDriver{
			board.SideBlack: stall,
			board.SideWhite: stall,
		},
	})
	require.NoError(t, err)
	_, err = mgr.Start(context.Background(), m.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return m.GetStatus() == StatusCancelled
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, ErrAgentTimeout.Error(), m.Snapshot().Reason)
}

// agentFunc adapts a plain function to the AgentDriver interface.
type agentFunc func(context.Context, *board.Board, board.Side, []rules.Move) (rules.Move, error)

func (f agentFunc) ProposeMove(ctx context.Context, b *board.Board, side board.Side, history []rules.Move) (rules.Move, error) {
	return f(ctx, b, side, history)
}

func TestCancel(t *testing.T) {
	mgr := newTestManager(t)
	m, err := mgr.Create(CreateSpec{Type: TypeHumanVsHuman, Participants: bothSides("a", "b")})
	require.NoError(t, err)
	_, err = mgr.Start(context.Background(), m.ID)
	require.NoError(t, err)

	require.NoError(t, mgr.Cancel(m.ID, "opponent left"))
	snap := m.Snapshot()
	assert.Equal(t, StatusCancelled, snap.Status)
	assert.Equal(t, "opponent left", snap.Reason)
	assert.Nil(t, snap.Winner)

	assert.ErrorIs(t, mgr.Cancel(m.ID, "again"), ErrMatchNotActive)
	assert.ErrorIs(t, mgr.Cancel("missing", "x"), ErrMatchNotFound)
}

func TestRecoverFromStore(t *testing.T) {
	store := newMemStore()
	mgr := NewManager(NewRegistry(), store, nil, DefaultConfig(), zap.NewNop())

	m, err := mgr.Create(CreateSpec{Type: TypeHumanVsHuman, Participants: bothSides("a", "b")})
	require.NoError(t, err)
	_, err = mgr.Start(context.Background(), m.ID)
	require.NoError(t, err)
	_, err = mgr.SubmitMove(context.Background(), m.ID, board.SideBlack, blackOpening)
	require.NoError(t, err)

	// Fresh manager over the same store, as after a restart.
	fresh := NewManager(NewRegistry(), store, nil, DefaultConfig(), zap.NewNop())
	recovered, err := fresh.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	restored, err := fresh.Get(m.ID)
	require.NoError(t, err)
	snap := restored.Snapshot()
	assert.Equal(t, StatusActive, snap.Status)
	assert.Equal(t, board.SideWhite, snap.CurrentSide)
	assert.Len(t, snap.MoveHistory, 1)
	assert.Equal(t, m.Snapshot().Board, snap.Board)

	// Play continues on the recovered match.
	_, err = fresh.SubmitMove(context.Background(), m.ID, board.SideWhite, whiteOpening)
	require.NoError(t, err)
}
