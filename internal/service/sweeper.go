package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kasigigs/kasigigs-backend/internal/goroutine"
)

// SweeperAttemptStore abandons overdue skill test attempts.
type SweeperAttemptStore interface {
	AbandonOverdue(ctx context.Context) (int64, error)
}

// SweeperDisputeStore advances disputes past their response deadline.
type SweeperDisputeStore interface {
	AdvanceOverdue(ctx context.Context, now time.Time) (int64, error)
}

// SweeperIntentStore fails gateway intents that never got a callback.
type SweeperIntentStore interface {
	FailStaleIntents(ctx context.Context, ttl time.Duration) (int64, error)
}

// Sweeper runs the periodic deadline maintenance: abandoned attempts,
// no-response disputes and stale gateway intents.
type Sweeper struct {
	attempts SweeperAttemptStore
	disputes SweeperDisputeStore
	intents  SweeperIntentStore

	interval  time.Duration
	intentTTL time.Duration
}

func NewSweeper(attempts SweeperAttemptStore, disputes SweeperDisputeStore, intents SweeperIntentStore, interval, intentTTL time.Duration) *Sweeper {
	return &Sweeper{
		attempts:  attempts,
		disputes:  disputes,
		intents:   intents,
		interval:  interval,
		intentTTL: intentTTL,
	}
}

// Start launches the sweep loop; it stops when the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	})
}

// RunOnce performs one sweep pass. Each sweep is independent: a failure in
// one does not stop the others.
func (s *Sweeper) RunOnce(ctx context.Context) {
	if n, err := s.attempts.AbandonOverdue(ctx); err != nil {
		logrus.WithError(err).Error("sweeper: abandon overdue attempts")
	} else if n > 0 {
		logrus.WithField("count", n).Info("sweeper: abandoned overdue attempts")
	}

	if n, err := s.disputes.AdvanceOverdue(ctx, time.Now()); err != nil {
		logrus.WithError(err).Error("sweeper: advance overdue disputes")
	} else if n > 0 {
		logrus.WithField("count", n).Info("sweeper: advanced overdue disputes")
	}

	if n, err := s.intents.FailStaleIntents(ctx, s.intentTTL); err != nil {
		logrus.WithError(err).Error("sweeper: fail stale intents")
	} else if n > 0 {
		logrus.WithField("count", n).Info("sweeper: failed stale gateway intents")
	}
}
