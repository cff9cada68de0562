package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewRecordingParams carries the intake fields for a discovered recording.
type NewRecordingParams struct {
	Account         string
	SourceID        string
	Title           string
	HostEmail       string
	RecordedAt      time.Time
	DurationSeconds int
	SizeBytes       int64
	StageSkips      []string
}

// NewRecording inserts a freshly discovered recording awaiting acquisition.
func (s *Store) NewRecording(ctx context.Context, params NewRecordingParams) (*Recording, error) {
	return s.insertRecording(ctx, params, StatusInitialized, "")
}

// NewSkippedRecording inserts a recording the intake rules rejected. It can
// later be reconsidered back to initialized.
func (s *Store) NewSkippedRecording(ctx context.Context, params NewRecordingParams, reason string) (*Recording, error) {
	return s.insertRecording(ctx, params, StatusSkipped, reason)
}

func (s *Store) insertRecording(ctx context.Context, params NewRecordingParams, status Status, skipReason string) (*Recording, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	stageSkipsValue, err := encodeStageSkips(params.StageSkips)
	if err != nil {
		return nil, err
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO recordings (
            uid, account, source_id, title, host_email, recorded_at,
            duration_seconds, size_bytes, status, stage_skips_json, skip_reason,
            created_at, updated_at, progress_percent
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		params.Account,
		params.SourceID,
		nullableString(params.Title),
		nullableString(params.HostEmail),
		nullableTime(&params.RecordedAt),
		params.DurationSeconds,
		params.SizeBytes,
		status,
		stageSkipsValue,
		nullableString(skipReason),
		timestamp,
		timestamp,
		0.0,
	)
	if err != nil {
		return nil, fmt.Errorf("insert recording: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a recording by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Recording, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE id = ?`, id)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return rec, nil
}

// GetByUID fetches a recording by its stable unique identifier.
func (s *Store) GetByUID(ctx context.Context, uid string) (*Recording, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE uid = ?`, uid)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recording by uid: %w", err)
	}
	return rec, nil
}

// FindBySource returns the recording matching a platform identity, if any.
// Used by intake sync to avoid duplicating recordings across runs.
func (s *Store) FindBySource(ctx context.Context, account, sourceID string) (*Recording, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE account = ? AND source_id = ? LIMIT 1`,
		account,
		sourceID,
	)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by source: %w", err)
	}
	return rec, nil
}

// Update persists changes to an existing recording.
func (s *Store) Update(ctx context.Context, rec *Recording) error {
	if rec == nil {
		return errors.New("recording is nil")
	}
	stagesValue, err := encodeStages(rec.Stages)
	if err != nil {
		return err
	}
	artifactsValue, err := encodeArtifacts(rec.Artifacts)
	if err != nil {
		return err
	}
	stageSkipsValue, err := encodeStageSkips(rec.StageSkips)
	if err != nil {
		return err
	}
	failureValue, err := encodeFailure(rec.Failure)
	if err != nil {
		return err
	}

	rec.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE recordings
         SET title = ?, host_email = ?, recorded_at = ?, duration_seconds = ?,
             size_bytes = ?, status = ?, stages_json = ?, artifact_refs_json = ?,
             stage_skips_json = ?, failure_json = ?, error_message = ?,
             skip_reason = ?, progress_stage = ?,
             progress_percent = ?, progress_message = ?, last_heartbeat = ?,
             needs_review = ?, review_reason = ?, retired_at = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(rec.Title),
		nullableString(rec.HostEmail),
		nullableTime(&rec.RecordedAt),
		rec.DurationSeconds,
		rec.SizeBytes,
		rec.Status,
		stagesValue,
		artifactsValue,
		stageSkipsValue,
		failureValue,
		nullableString(rec.ErrorMessage),
		nullableString(rec.SkipReason),
		nullableString(rec.ProgressStage),
		rec.ProgressPercent,
		nullableString(rec.ProgressMessage),
		nullableTime(rec.LastHeartbeat),
		boolToInt(rec.NeedsReview),
		nullableString(rec.ReviewReason),
		nullableTime(rec.RetiredAt),
		rec.UpdatedAt.Format(time.RFC3339Nano),
		rec.ID,
	); err != nil {
		return fmt.Errorf("update recording: %w", err)
	}
	return nil
}

// RecordingsByStatus returns recordings matching a status ordered by creation time.
func (s *Store) RecordingsByStatus(ctx context.Context, status Status) ([]*Recording, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordingColumns+` FROM recordings WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()

	var recordings []*Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recordings = append(recordings, rec)
	}
	return recordings, rows.Err()
}

// List returns recordings filtered by status set (or all recordings when no
// status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Recording, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + recordingColumns + ` FROM recordings`
	orderClause := ` ORDER BY created_at`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	var recordings []*Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recordings = append(recordings, rec)
	}
	return recordings, rows.Err()
}

// NextForStatuses returns the oldest recording matching any of the provided statuses.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Recording, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}

	query := `SELECT ` + recordingColumns + ` FROM recordings WHERE status IN (` + placeholders + `) ORDER BY created_at LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, args...)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Remove deletes a recording by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete recording: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearPublished removes only published recordings from the queue.
func (s *Store) ClearPublished(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM recordings WHERE status = ?`, StatusPublished)
	if err != nil {
		return 0, fmt.Errorf("clear published: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed recordings from the queue.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM recordings WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all recordings from the queue.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM recordings`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}
