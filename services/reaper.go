package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/akashpai/prepvox/backend/repository"
	"github.com/robfig/cron/v3"
)

// SessionReaper cancels in-progress sessions that have seen no activity for
// longer than the configured window, so abandoned interviews still reach a
// terminal state and their results can be aggregated.
type SessionReaper struct {
	repo       *repository.GORMRepository
	engine     *InterviewEngine
	staleAfter time.Duration
	cron       *cron.Cron
}

func NewSessionReaper(repo *repository.GORMRepository, engine *InterviewEngine, staleAfter time.Duration) *SessionReaper {
	if staleAfter <= 0 {
		staleAfter = 45 * time.Minute
	}
	return &SessionReaper{
		repo:       repo,
		engine:     engine,
		staleAfter: staleAfter,
		cron:       cron.New(),
	}
}

// Start schedules the sweep every five minutes.
func (s *SessionReaper) Start() error {
	_, err := s.cron.AddFunc("@every 5m", s.sweep)
	if err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("Session reaper started", "stale_after", s.staleAfter)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *SessionReaper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("Session reaper stopped")
}

func (s *SessionReaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.staleAfter)
	stale, err := s.repo.ListStaleInProgress(ctx, cutoff)
	if err != nil {
		slog.Error("Reaper sweep failed to list stale sessions", "error", err)
		return
	}

	for _, session := range stale {
		if _, err := s.engine.CancelSession(ctx, session.ID); err != nil {
			// A concurrent completion is fine; anything else is worth noting.
			if !IsPolicyViolation(err) {
				slog.Error("Reaper failed to cancel stale session", "error", err, "session_id", session.ID)
			}
			continue
		}
		slog.Info("Cancelled stale interview session", "session_id", session.ID, "last_activity", session.UpdatedAt)
	}
}
