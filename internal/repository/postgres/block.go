package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/quiet-hours/internal/model"
	apperrors "github.com/jwalitptl/quiet-hours/pkg/errors"
)

type timeBlockRepository struct {
	BaseRepository
}

func (r *timeBlockRepository) Create(ctx context.Context, block *model.TimeBlock) error {
	if err := block.Validate(); err != nil {
		return apperrors.BadRequest("invalid block", err)
	}

	if block.ID == uuid.Nil {
		block.ID = uuid.New()
	}
	block.CreatedAt = time.Now()
	block.UpdatedAt = block.CreatedAt

	query := `
		INSERT INTO time_blocks (
			id, user_id, title, description, start_time, end_time,
			is_active, email_sent, email_sent_at, created_at, updated_at
		) VALUES (
			:id, :user_id, :title, :description, :start_time, :end_time,
			:is_active, :email_sent, :email_sent_at, :created_at, :updated_at
		)
	`
	if _, err := r.db.NamedExecContext(ctx, query, block); err != nil {
		return fmt.Errorf("failed to create time block: %w", err)
	}
	return nil
}

func (r *timeBlockRepository) Get(ctx context.Context, id uuid.UUID) (*model.TimeBlock, error) {
	query := `
		SELECT id, user_id, title, description, start_time, end_time,
			is_active, email_sent, email_sent_at, created_at, updated_at
		FROM time_blocks
		WHERE id = $1
	`

	var block model.TimeBlock
	if err := r.db.GetContext(ctx, &block, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("time block", err)
		}
		return nil, fmt.Errorf("failed to get time block: %w", err)
	}
	return &block, nil
}

func (r *timeBlockRepository) MarkEmailSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE time_blocks
		SET email_sent = TRUE, email_sent_at = $2, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to mark block email sent: %w", err)
	}
	return nil
}
