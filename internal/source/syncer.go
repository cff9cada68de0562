// Package source discovers finished cloud recordings and admits them into the
// processing queue.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/naming"
	"reel/internal/queue"
	"reel/internal/services/zoom"
)

// Lister enumerates finished cloud recordings for one account.
type Lister interface {
	ListRecordings(ctx context.Context, account string, since, until time.Time) ([]zoom.Meeting, error)
}

// Summary reports what one sync pass did.
type Summary struct {
	Accounts     int
	Discovered   int
	Skipped      int
	Reconsidered int
	Errors       []string
}

// Syncer polls every enabled account on a cron schedule and inserts newly
// finished recordings.
type Syncer struct {
	cfg      *config.Config
	store    *queue.Store
	lister   Lister
	rules    *Rules
	schedule cron.Schedule
	logger   *slog.Logger
	kick     chan struct{}
}

// NewSyncer builds the intake syncer. The sync schedule uses the standard
// five-field cron syntax.
func NewSyncer(cfg *config.Config, store *queue.Store, lister Lister, logger *slog.Logger) (*Syncer, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	schedule, err := cron.ParseStandard(cfg.Source.SyncSchedule)
	if err != nil {
		return nil, fmt.Errorf("parse sync schedule %q: %w", cfg.Source.SyncSchedule, err)
	}
	rules, err := NewRules(cfg)
	if err != nil {
		return nil, err
	}
	return &Syncer{
		cfg:      cfg,
		store:    store,
		lister:   lister,
		rules:    rules,
		schedule: schedule,
		logger:   logger.With(logging.String(logging.FieldComponent, "source")),
		kick:     make(chan struct{}, 1),
	}, nil
}

// Kick requests an immediate sync pass without waiting for the schedule.
func (s *Syncer) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Run drives scheduled sync passes until the context is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.kick:
			timer.Stop()
		case <-timer.C:
		}
		if summary, err := s.SyncAll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("sync pass failed", logging.Error(err))
		} else {
			s.logger.Info("sync pass finished",
				logging.Int("accounts", summary.Accounts),
				logging.Int("discovered", summary.Discovered),
				logging.Int("skipped", summary.Skipped),
				logging.Int("reconsidered", summary.Reconsidered))
		}
	}
}

// SyncAll lists recent recordings for every enabled account and admits the
// new ones. Per-account listing failures are collected, not fatal, so one
// unreachable account does not block the rest.
func (s *Syncer) SyncAll(ctx context.Context) (Summary, error) {
	var summary Summary
	until := time.Now()
	since := until.AddDate(0, 0, -s.lookbackDays())

	for _, account := range s.cfg.EnabledAccounts() {
		summary.Accounts++
		meetings, err := s.lister.ListRecordings(ctx, account.Name, since, until)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", account.Name, err))
			s.logger.Warn("account listing failed",
				logging.String(logging.FieldAccount, account.Name),
				logging.Error(err))
			continue
		}
		for _, meeting := range meetings {
			if err := s.admit(ctx, account, meeting, &summary); err != nil {
				return summary, err
			}
		}
	}
	return summary, nil
}

func (s *Syncer) admit(ctx context.Context, account config.Account, meeting zoom.Meeting, summary *Summary) error {
	reason := s.rules.Evaluate(meeting)

	existing, err := s.store.FindBySource(ctx, account.Name, meeting.UUID)
	if err != nil {
		return fmt.Errorf("look up recording %s: %w", meeting.UUID, err)
	}
	if existing != nil {
		// Known recording. The only intake action left is the skipped
		// re-evaluation when the current rules now admit it.
		if existing.Status == queue.StatusSkipped && reason == "" {
			if _, err := s.store.ReconsiderSkipped(ctx, existing.ID); err != nil {
				return fmt.Errorf("reconsider recording %d: %w", existing.ID, err)
			}
			summary.Reconsidered++
			s.logger.Info("skipped recording reconsidered",
				logging.String(logging.FieldAccount, account.Name),
				logging.Int64(logging.FieldRecordingID, existing.ID),
				logging.String("title", existing.Title))
		}
		return nil
	}

	params := queue.NewRecordingParams{
		Account:         account.Name,
		StageSkips:      account.SkipStages,
		SourceID:        meeting.UUID,
		Title:           naming.DisplayTitle(meeting.Topic),
		HostEmail:       meeting.HostEmail,
		RecordedAt:      meeting.StartTime,
		DurationSeconds: meeting.Duration * 60,
		SizeBytes:       meeting.TotalSize,
	}
	if reason != "" {
		rec, err := s.store.NewSkippedRecording(ctx, params, reason)
		if err != nil {
			return fmt.Errorf("insert skipped recording %s: %w", meeting.UUID, err)
		}
		summary.Skipped++
		s.logger.Info("recording skipped",
			logging.String(logging.FieldAccount, account.Name),
			logging.Int64(logging.FieldRecordingID, rec.ID),
			logging.String("title", rec.Title),
			logging.String("reason", reason))
		return nil
	}

	rec, err := s.store.NewRecording(ctx, params)
	if err != nil {
		return fmt.Errorf("insert recording %s: %w", meeting.UUID, err)
	}
	summary.Discovered++
	s.logger.Info("recording discovered",
		logging.String(logging.FieldAccount, account.Name),
		logging.Int64(logging.FieldRecordingID, rec.ID),
		logging.String("title", rec.Title))
	return nil
}

func (s *Syncer) lookbackDays() int {
	if s.cfg.Source.LookbackDays > 0 {
		return s.cfg.Source.LookbackDays
	}
	return 7
}
