package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jwalitptl/quiet-hours/internal/model"
	apperrors "github.com/jwalitptl/quiet-hours/pkg/errors"
)

const jobColumns = `id, notification_id, user_id, block_id, scheduled_time, status, attempts, last_error, claimed_at, created_at, updated_at`

type jobRepository struct {
	BaseRepository
}

func statusArray(statuses []model.JobStatus) interface{} {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.Array(out)
}

func (r *jobRepository) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	var j model.Job
	if err := r.db.GetContext(ctx, &j, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("job", err)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &j, nil
}

func (r *jobRepository) FindRunning(ctx context.Context, userID uuid.UUID) (*model.Job, error) {
	var j model.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE user_id = $1 AND status = $2 LIMIT 1`
	if err := r.db.GetContext(ctx, &j, query, userID, model.JobStatusRunning); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find running job: %w", err)
	}
	return &j, nil
}

func (r *jobRepository) FindByNotification(ctx context.Context, notificationID uuid.UUID) (*model.Job, error) {
	var j model.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE notification_id = $1`
	if err := r.db.GetContext(ctx, &j, query, notificationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("job", err)
		}
		return nil, fmt.Errorf("failed to find job for notification: %w", err)
	}
	return &j, nil
}

func (r *jobRepository) FindByKey(ctx context.Context, key model.ScheduleKey) (*model.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE user_id = $1 AND block_id = $2 AND scheduled_time = $3
		ORDER BY (status IN ($4, $5)) ASC, created_at DESC
		LIMIT 1
	`

	var j model.Job
	if err := r.db.GetContext(ctx, &j, query, key.UserID, key.BlockID, key.ScheduledTime,
		model.JobStatusCompleted, model.JobStatusCancelled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("job", err)
		}
		return nil, fmt.Errorf("failed to find job: %w", err)
	}
	return &j, nil
}

// Claim relies on uq_jobs_running to reject a second running job per user.
func (r *jobRepository) Claim(ctx context.Context, id uuid.UUID, now time.Time) (*model.Job, error) {
	query := `
		UPDATE jobs
		SET status = $2, attempts = attempts + 1, claimed_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)
		RETURNING ` + jobColumns

	var j model.Job
	err := r.db.GetContext(ctx, &j, query, id, model.JobStatusRunning, now, statusArray(model.SourcesOf(model.JobStatusRunning)))
	switch {
	case err == nil:
		return &j, nil
	case isUniqueViolation(err):
		return nil, apperrors.NewClaimConflict(id)
	case errors.Is(err, sql.ErrNoRows):
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, apperrors.NewClaimConflict(id)
	default:
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
}

func (r *jobRepository) SetStatus(ctx context.Context, id uuid.UUID, status model.JobStatus, errMsg *string) error {
	query := `
		UPDATE jobs
		SET status = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`

	res, err := r.db.ExecContext(ctx, query, id, status, errMsg, statusArray(model.SourcesOf(status)))
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewClaimConflict(id)
		}
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return apperrors.NewIllegalTransition(string(current.Status), string(status))
}

func (r *jobRepository) CancelPendingForBlock(ctx context.Context, blockID uuid.UUID) (int64, error) {
	query := `UPDATE jobs SET status = $2, updated_at = NOW() WHERE block_id = $1 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, blockID, model.JobStatusCancelled, model.JobStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel jobs: %w", err)
	}
	return res.RowsAffected()
}

func (r *jobRepository) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	query := `
		UPDATE jobs
		SET status = $1, last_error = 'claim expired', updated_at = NOW()
		WHERE status = $2 AND claimed_at < $3
	`
	res, err := r.db.ExecContext(ctx, query, model.JobStatusFailed, model.JobStatusRunning, claimedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale jobs: %w", err)
	}
	return res.RowsAffected()
}
