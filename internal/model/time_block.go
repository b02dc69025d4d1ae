package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TimeBlock is a user-defined quiet-hours interval.
type TimeBlock struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	Title       string     `json:"title" db:"title"`
	Description *string    `json:"description,omitempty" db:"description"`
	StartTime   time.Time  `json:"start_time" db:"start_time"`
	EndTime     time.Time  `json:"end_time" db:"end_time"`
	IsActive    bool       `json:"is_active" db:"is_active"`
	EmailSent   bool       `json:"email_sent" db:"email_sent"`
	EmailSentAt *time.Time `json:"email_sent_at,omitempty" db:"email_sent_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

var ErrInvalidBlockInterval = errors.New("end time must be after start time")

func (b *TimeBlock) Validate() error {
	if !b.EndTime.After(b.StartTime) {
		return ErrInvalidBlockInterval
	}
	return nil
}
