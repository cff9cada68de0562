package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func rollbackCaseClause(transitions []StatusTransition) (string, []any, []any) {
	var caseBuilder strings.Builder
	caseArgs := make([]any, 0, len(transitions)*2)
	whereArgs := make([]any, 0, len(transitions))
	caseBuilder.WriteString("CASE status")
	for _, transition := range transitions {
		caseBuilder.WriteString(" WHEN ? THEN ?")
		caseArgs = append(caseArgs, transition.From, transition.To)
		whereArgs = append(whereArgs, transition.From)
	}
	caseBuilder.WriteString(" ELSE status END")
	return caseBuilder.String(), caseArgs, whereArgs
}

// ResetStuckProcessing returns recordings stranded in processing states to
// the start of their current stage. Called once at daemon startup before
// the workflow begins polling.
func (s *Store) ResetStuckProcessing(ctx context.Context, transitions ...StatusTransition) (int64, error) {
	if len(transitions) == 0 {
		transitions = DefaultRollbacks()
	}
	caseClause, caseArgs, whereArgs := rollbackCaseClause(transitions)

	args := make([]any, 0, len(caseArgs)+len(whereArgs)+1)
	args = append(args, caseArgs...)
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	args = append(args, whereArgs...)

	res, err := s.execWithRetry(
		ctx,
		`UPDATE recordings
         SET status = `+caseClause+`,
             progress_stage = 'Reset from stuck processing',
             progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE status IN (`+makePlaceholders(len(whereArgs))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck recordings: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight recording.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE recordings SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns recordings stuck in processing back to the
// start of their current stage when heartbeats expire.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time, transitions ...StatusTransition) (int64, error) {
	if len(transitions) == 0 {
		transitions = DefaultRollbacks()
	}
	caseClause, caseArgs, whereArgs := rollbackCaseClause(transitions)

	args := make([]any, 0, len(caseArgs)+len(whereArgs)+2)
	args = append(args, caseArgs...)
	args = append(args, time.Now().UTC().Format(time.RFC3339Nano))
	args = append(args, whereArgs...)
	args = append(args, cutoff.UTC().Format(time.RFC3339Nano))

	res, err := s.execWithRetry(
		ctx,
		`UPDATE recordings
        SET status = `+caseClause+`,
            progress_stage = 'Reclaimed from stale processing',
            progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status IN (`+makePlaceholders(len(whereArgs))+`) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale recordings: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed recordings back to the last completed milestone
// for reprocessing. Failed stage records return to pending with a fresh
// retry budget; completed stages are left untouched so resumed runs skip
// them. When no ids are given every failed recording is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	var (
		candidates []*Recording
		err        error
	)
	if len(ids) == 0 {
		candidates, err = s.RecordingsByStatus(ctx, StatusFailed)
		if err != nil {
			return 0, fmt.Errorf("list failed recordings: %w", err)
		}
	} else {
		for _, id := range ids {
			rec, getErr := s.GetByID(ctx, id)
			if getErr != nil {
				return 0, getErr
			}
			if rec == nil || rec.Status != StatusFailed {
				continue
			}
			candidates = append(candidates, rec)
		}
	}

	var retried int64
	for _, rec := range candidates {
		for _, record := range rec.Stages {
			if record == nil {
				continue
			}
			if record.Status == StageFailed || record.Status == StageInProgress {
				record.Status = StagePending
				record.RetryCount = 0
				record.FailedReason = ""
				record.StartedAt = nil
				record.CompletedAt = nil
			}
		}
		rec.ClearFailure()
		rec.Status = rec.ResumeStatus()
		rec.SetProgress("Retry requested", "", 0)
		rec.LastHeartbeat = nil
		if err := s.Update(ctx, rec); err != nil {
			return retried, fmt.Errorf("retry recording %d: %w", rec.ID, err)
		}
		retried++
	}
	return retried, nil
}

// ReconsiderSkipped returns skipped recordings to initialized so the next
// pipeline run picks them up. This is the only backward lifecycle
// transition; every other recovery path is a processing rollback.
func (s *Store) ReconsiderSkipped(ctx context.Context, ids ...int64) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE recordings
            SET status = ?, skip_reason = NULL, progress_stage = 'Reconsidered', updated_at = ?
            WHERE status = ?`,
			StatusInitialized,
			timestamp,
			StatusSkipped,
		)
		if err != nil {
			return 0, fmt.Errorf("reconsider skipped recordings: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusInitialized, timestamp)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE recordings
        SET status = ?, skip_reason = NULL, progress_stage = 'Reconsidered', updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusSkipped) + `'`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reconsider selected recordings: %w", err)
	}
	return res.RowsAffected()
}
