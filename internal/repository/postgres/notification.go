package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/quiet-hours/internal/model"
	apperrors "github.com/jwalitptl/quiet-hours/pkg/errors"
)

const notificationColumns = `id, user_id, block_id, scheduled_time, sent, sent_at, created_at`

type notificationRepository struct {
	BaseRepository
}

func (r *notificationRepository) CreateWithJob(ctx context.Context, n *model.Notification, j *model.Job) error {
	now := time.Now()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Status == "" {
		j.Status = model.JobStatusPending
	}
	j.NotificationID = n.ID
	n.CreatedAt = now
	j.CreatedAt = now
	j.UpdatedAt = now

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO notifications (id, user_id, block_id, scheduled_time, sent, sent_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, n.ID, n.UserID, n.BlockID, n.ScheduledTime, n.Sent, n.SentAt, n.CreatedAt)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO jobs (id, notification_id, user_id, block_id, scheduled_time, status, attempts, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
		`, j.ID, j.NotificationID, j.UserID, j.BlockID, j.ScheduledTime, j.Status, j.CreatedAt, j.UpdatedAt)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewDuplicateSchedule(err)
		}
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	var n model.Notification
	err := r.db.GetContext(ctx, &n, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("notification", err)
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

func (r *notificationRepository) FindDue(ctx context.Context, now time.Time, window time.Duration) ([]*model.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE sent = FALSE
		AND scheduled_time >= $1
		AND scheduled_time <= $2
		ORDER BY scheduled_time ASC
	`

	var due []*model.Notification
	if err := r.db.SelectContext(ctx, &due, query, now, now.Add(window)); err != nil {
		return nil, fmt.Errorf("failed to find due notifications: %w", err)
	}
	return due, nil
}

func (r *notificationRepository) FindUnsent(ctx context.Context, userID uuid.UUID, scheduledTime time.Time) (*model.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1 AND scheduled_time = $2 AND sent = FALSE
		LIMIT 1
	`

	var n model.Notification
	if err := r.db.GetContext(ctx, &n, query, userID, scheduledTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find unsent notification: %w", err)
	}
	return &n, nil
}

func (r *notificationRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET sent = TRUE, sent_at = $2 WHERE id = $1`, id, sentAt)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("notification", nil)
	}
	return nil
}

func (r *notificationRepository) MarkAllSentForBlock(ctx context.Context, blockID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET sent = TRUE WHERE block_id = $1 AND sent = FALSE`, blockID)
	if err != nil {
		return 0, fmt.Errorf("failed to close block notifications: %w", err)
	}
	return res.RowsAffected()
}
