package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "rag-server/errors"
	"rag-server/web/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateJob records a new ingestion job in the queued state.
func (s *Store) CreateJob(ctx context.Context, userID string, total int) (*types.IngestionJob, error) {
	job := &types.IngestionJob{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    types.JobStatusQueued,
		Total:     total,
		Errors:    []string{},
		StartedAt: time.Now(),
	}

	query := `
		INSERT INTO ingestion_jobs (id, user_id, status, total, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.pool.Exec(ctx, query,
		job.ID, job.UserID, string(job.Status), job.Total, job.StartedAt); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	return job, nil
}

// MarkJobProcessing flips a queued job to processing. A job already in a
// terminal state is left untouched.
func (s *Store) MarkJobProcessing(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE ingestion_jobs SET status = $1 WHERE id = $2 AND status = $3`,
		string(types.JobStatusProcessing), jobID, string(types.JobStatusQueued))
	if err != nil {
		return apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	return nil
}

// IncrementProcessed bumps the processed counter by one.
func (s *Store) IncrementProcessed(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE ingestion_jobs SET processed = processed + 1 WHERE id = $1`, jobID)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	return nil
}

// IncrementFailed bumps the failed counter and appends the error message.
func (s *Store) IncrementFailed(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE ingestion_jobs SET failed = failed + 1, errors = array_append(errors, $1) WHERE id = $2`,
		errMsg, jobID)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	return nil
}

// CompleteJob computes the terminal status from the counters and stamps
// completed_at. A job cancelled mid-flight keeps its cancelled status.
func (s *Store) CompleteJob(ctx context.Context, jobID uuid.UUID) (types.JobStatus, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	defer tx.Rollback(ctx)

	var status string
	var total, processed, failed int
	err = tx.QueryRow(ctx,
		`SELECT status, total, processed, failed FROM ingestion_jobs WHERE id = $1 FOR UPDATE`,
		jobID).Scan(&status, &total, &processed, &failed)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperrors.WrapErrorf(apperrors.ErrNotFound, "job %s", jobID)
	}
	if err != nil {
		return "", apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}

	current := types.JobStatus(status)
	if current.IsTerminal() {
		return current, tx.Commit(ctx)
	}

	terminal := types.JobStatusCompleted
	switch {
	case failed > 0 && processed > 0:
		terminal = types.JobStatusPartial
	case failed > 0 && processed == 0:
		terminal = types.JobStatusFailed
	}

	if _, err := tx.Exec(ctx,
		`UPDATE ingestion_jobs SET status = $1, completed_at = NOW() WHERE id = $2`,
		string(terminal), jobID); err != nil {
		return "", apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	if err := tx.Commit(ctx); err != nil {
		return "", apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	return terminal, nil
}

// CancelJob marks a queued or processing job cancelled. Returns false and
// an explanatory message when the job is already terminal.
func (s *Store) CancelJob(ctx context.Context, jobID uuid.UUID, userID string) (bool, string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, "", apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	defer tx.Rollback(ctx)

	var ownerID, status string
	err = tx.QueryRow(ctx,
		`SELECT user_id, status FROM ingestion_jobs WHERE id = $1 FOR UPDATE`, jobID).
		Scan(&ownerID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, "", apperrors.WrapErrorf(apperrors.ErrNotFound, "job %s", jobID)
	}
	if err != nil {
		return false, "", apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	if ownerID != userID {
		return false, "", apperrors.WrapErrorf(apperrors.ErrUnauthorized, "job %s", jobID)
	}

	current := types.JobStatus(status)
	if current.IsTerminal() {
		return false, fmt.Sprintf("Cannot cancel job in %s state", current), tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE ingestion_jobs
		 SET status = $1, completed_at = NOW(), errors = array_append(errors, $2)
		 WHERE id = $3`,
		string(types.JobStatusCancelled), fmt.Sprintf("cancelled by %s", userID), jobID); err != nil {
		return false, "", apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	if err := tx.Commit(ctx); err != nil {
		return false, "", apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	return true, "Job cancelled", nil
}

// GetJob fetches a job scoped to its owner.
func (s *Store) GetJob(ctx context.Context, jobID uuid.UUID, userID string) (*types.IngestionJob, error) {
	query := `
		SELECT id, user_id, status, total, processed, failed, errors, started_at, completed_at
		FROM ingestion_jobs WHERE id = $1
	`
	var job types.IngestionJob
	var status string
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&job.ID, &job.UserID, &status, &job.Total, &job.Processed,
		&job.Failed, &job.Errors, &job.StartedAt, &job.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.WrapErrorf(apperrors.ErrNotFound, "job %s", jobID)
	}
	if err != nil {
		return nil, apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	if job.UserID != userID {
		return nil, apperrors.WrapErrorf(apperrors.ErrUnauthorized, "job %s", jobID)
	}
	job.Status = types.JobStatus(status)
	return &job, nil
}

// JobStatusByID reads just the status column, used by the pipeline's
// cooperative cancellation check between documents.
func (s *Store) JobStatusByID(ctx context.Context, jobID uuid.UUID) (types.JobStatus, error) {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM ingestion_jobs WHERE id = $1`, jobID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperrors.WrapErrorf(apperrors.ErrNotFound, "job %s", jobID)
	}
	if err != nil {
		return "", apperrors.WrapError(apperrors.ErrDatabaseOperation, err.Error())
	}
	return types.JobStatus(status), nil
}
