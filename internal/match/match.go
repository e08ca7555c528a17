// Package match owns the match lifecycle: creation, the
// pending/active/completed/cancelled state machine, turn-ownership checks,
// autonomous play, and the registry of live matches. All mutations of a
// single match are serialized by that match's own mutex; operations on
// different matches proceed fully in parallel.
package match

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gungifree/gungi-server-go/internal/board"
	"github.com/gungifree/gungi-server-go/internal/rules"
)

// Status is the lifecycle state of a match.
type Status int

const (
	StatusPending Status = iota
	StatusActive
	StatusCompleted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusActive:
		return "ACTIVE"
	case StatusCompleted:
		return "COMPLETED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("STATUS_%d", int(s))
	}
}

// Type identifies the participant composition of a match.
type Type string

const (
	TypeHumanVsHuman Type = "human_vs_human"
	TypeHumanVsAI    Type = "human_vs_ai"
	TypeAIVsAI       Type = "ai_vs_ai"
)

// Match is one running or finished game. The mutex serializes every
// lifecycle operation for this match; the board is mutated only while it is
// held.
type Match struct {
	mu sync.Mutex

	ID           string
	Type         Type
	Status       Status
	Participants map[board.Side]string
	Board        *board.Board
	MoveHistory  []rules.Move
	CurrentSide  board.Side
	Winner       *board.Side
	Reason       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Snapshot is a consistent, copy-safe view of a match for callers outside
// the lifecycle lock.
type Snapshot struct {
	ID           string
	Type         Type
	Status       Status
	Participants map[board.Side]string
	Board        board.View
	MoveHistory  []rules.Move
	CurrentSide  board.Side
	Winner       *board.Side
	Reason       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// newMatch builds a pending match with the standard board setup and a
// collision-free identifier: a random 128-bit UUID, paired with the
// creation instant recorded on the match itself.
func newMatch(matchType Type) *Match {
	now := time.Now().UTC()
	return &Match{
		ID:           uuid.NewString(),
		Type:         matchType,
		Status:       StatusPending,
		Participants: make(map[board.Side]string),
		Board:        board.NewStandard(),
		CurrentSide:  board.SideBlack,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Bind attaches a participant identifier to a side. Only pending matches
// accept new participants.
func (m *Match) Bind(side board.Side, participant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Status != StatusPending {
		return ErrAlreadyStarted
	}
	m.Participants[side] = participant
	return nil
}

// Participant returns the identifier bound to a side.
func (m *Match) Participant(side board.Side) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.Participants[side]
	return id, ok
}

// GetStatus returns the current lifecycle state.
func (m *Match) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Status
}

// Snapshot returns a consistent copy of the match.
func (m *Match) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Match) snapshotLocked() Snapshot {
	participants := make(map[board.Side]string, len(m.Participants))
	for side, id := range m.Participants {
		participants[side] = id
	}
	history := make([]rules.Move, len(m.MoveHistory))
	copy(history, m.MoveHistory)
	var winner *board.Side
	if m.Winner != nil {
		w := *m.Winner
		winner = &w
	}
	return Snapshot{
		ID:           m.ID,
		Type:         m.Type,
		Status:       m.Status,
		Participants: participants,
		Board:        m.Board.Snapshot(),
		MoveHistory:  history,
		CurrentSide:  m.CurrentSide,
		Winner:       winner,
		Reason:       m.Reason,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// start transitions pending -> active. Exactly one concurrent caller
// succeeds; the rest observe ErrAlreadyStarted.
func (m *Match) start(requireBound bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Status != StatusPending {
		return ErrAlreadyStarted
	}
	if requireBound {
		for _, side := range []board.Side{board.SideBlack, board.SideWhite} {
			if _, ok := m.Participants[side]; !ok {
				return fmt.Errorf("%w: %s", ErrSideNotBound, side)
			}
		}
	}
	m.Status = StatusActive
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// finishLocked finalizes the match. Caller holds m.mu.
func (m *Match) finishLocked(status Status, winner *board.Side, reason string) {
	m.Status = status
	m.Winner = winner
	m.Reason = reason
	m.UpdatedAt = time.Now().UTC()
}
