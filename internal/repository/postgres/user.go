package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/quiet-hours/internal/model"
	apperrors "github.com/jwalitptl/quiet-hours/pkg/errors"
)

type userRepository struct {
	BaseRepository
}

func (r *userRepository) GetRecipient(ctx context.Context, userID uuid.UUID) (*model.Recipient, error) {
	var rcpt model.Recipient
	err := r.db.GetContext(ctx, &rcpt, `SELECT id, email, name FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewRecipientNotFound(userID, err)
		}
		return nil, fmt.Errorf("failed to get recipient: %w", err)
	}
	return &rcpt, nil
}
