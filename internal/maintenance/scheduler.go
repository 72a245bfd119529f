// Package maintenance runs periodic purges of expired account state.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kozaktomas/sketch-match/internal/database"
)

const purgeTimeout = 5 * time.Minute

// Stats reports what a purge removed.
type Stats struct {
	Sessions    int64
	ResetTokens int64
}

// Scheduler purges expired sessions and reset tokens on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
}

// NewScheduler creates a new maintenance scheduler
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
	}
}

// Start schedules the purge job. schedule accepts standard five field
// expressions and descriptors such as "@every 1h".
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		schedule = "@every 1h"
	}

	if _, err := s.cron.AddFunc(schedule, s.runPurge); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info("maintenance scheduler started", zap.String("schedule", schedule))
	return nil
}

// Stop stops the scheduler and waits for a running purge to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("maintenance scheduler stopped")
}

func (s *Scheduler) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	start := time.Now()
	stats, err := Purge(ctx)
	if err != nil {
		s.logger.Error("scheduled purge failed", zap.Error(err))
	}
	s.logger.Info("scheduled purge completed",
		zap.Int64("sessions", stats.Sessions),
		zap.Int64("reset_tokens", stats.ResetTokens),
		zap.Duration("duration", time.Since(start)))
}

// Purge deletes expired sessions and used or expired reset tokens from the
// registered backends. Both purges run even when one fails.
func Purge(ctx context.Context) (Stats, error) {
	var stats Stats
	var errs []error

	if sessions, err := database.GetSessionRepository(ctx); err != nil {
		errs = append(errs, err)
	} else if n, err := sessions.DeleteExpired(ctx); err != nil {
		errs = append(errs, fmt.Errorf("purge sessions: %w", err))
	} else {
		stats.Sessions = n
	}

	if tokens, err := database.GetResetTokenRepository(ctx); err != nil {
		errs = append(errs, err)
	} else if n, err := tokens.DeleteExpiredResetTokens(ctx); err != nil {
		errs = append(errs, fmt.Errorf("purge reset tokens: %w", err))
	} else {
		stats.ResetTokens = n
	}

	return stats, errors.Join(errs...)
}
