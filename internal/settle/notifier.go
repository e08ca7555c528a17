// Package settle delivers match-completion notifications to the settlement
// collaborator. The match is already final when a notification fires, so
// delivery failures are retried on their own schedule and never touch match
// state.
package settle

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Sink is the downstream settlement endpoint.
type Sink interface {
	MatchCompleted(ctx context.Context, matchID string, winner string) error
}

// Notifier wraps a Sink with capped exponential retry.
type Notifier struct {
	sink       Sink
	logger     *zap.Logger
	baseDelay  time.Duration
	maxRetries uint64
}

// NewNotifier creates a retrying notifier. Zero values fall back to a
// 1-second base delay and 5 retries.
func NewNotifier(sink Sink, baseDelay time.Duration, maxRetries uint64, logger *zap.Logger) *Notifier {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxRetries == 0 {
		maxRetries = 5
	}
	return &Notifier{
		sink:       sink,
		logger:     logger,
		baseDelay:  baseDelay,
		maxRetries: maxRetries,
	}
}

// MatchCompleted delivers the notification, retrying transient failures
// with exponential backoff until the retry budget is spent.
func (n *Notifier) MatchCompleted(ctx context.Context, matchID string, winner string) error {
	backoff := retry.WithMaxRetries(n.maxRetries, retry.NewExponential(n.baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := n.sink.MatchCompleted(ctx, matchID, winner); err != nil {
			n.logger.Warn("settlement delivery failed, will retry",
				zap.String("match_id", matchID),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		n.logger.Error("settlement delivery abandoned",
			zap.String("match_id", matchID),
			zap.String("winner", winner),
			zap.Error(err),
		)
		return err
	}
	n.logger.Info("settlement notified",
		zap.String("match_id", matchID),
		zap.String("winner", winner),
	)
	return nil
}

// LogSink is the default sink when no settlement backend is configured: it
// records the completion and succeeds.
type LogSink struct {
	Logger *zap.Logger
}

// MatchCompleted implements Sink.
func (s *LogSink) MatchCompleted(_ context.Context, matchID string, winner string) error {
	s.Logger.Info("match settled",
		zap.String("match_id", matchID),
		zap.String("winner", winner),
	)
	return nil
}
