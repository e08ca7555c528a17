package match

import "context"

// MatchStore is the persistence collaborator. The manager calls SaveMatch
// after every status transition and move application, and ListRecoverable
// once at startup to repopulate the registry after a restart. Store
// failures are logged, never allowed to break a live match.
type MatchStore interface {
	SaveMatch(ctx context.Context, snap Snapshot) error
	LoadMatch(ctx context.Context, id string) (Snapshot, bool, error)
	ListRecoverable(ctx context.Context) ([]Snapshot, error)
}

// SettlementNotifier receives the completion notification once a match is
// final. By the time it fires the match status is already settled, so
// notifier failures are retried independently of match state.
type SettlementNotifier interface {
	MatchCompleted(ctx context.Context, matchID string, winner string) error
}
