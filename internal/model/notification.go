package model

import (
	"time"

	"github.com/google/uuid"
)

// Notification is a single scheduled reminder for a quiet-hour block.
// Rows are never deleted; Sent doubles as "will not be processed again"
// for cancelled reminders, in which case SentAt stays nil.
type Notification struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	UserID        uuid.UUID  `json:"user_id" db:"user_id"`
	BlockID       uuid.UUID  `json:"block_id" db:"block_id"`
	ScheduledTime time.Time  `json:"scheduled_time" db:"scheduled_time"`
	Sent          bool       `json:"sent" db:"sent"`
	SentAt        *time.Time `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// Delivered reports whether the reminder actually went out, as opposed to
// being closed by a cancellation or an inactive block.
func (n *Notification) Delivered() bool {
	return n.Sent && n.SentAt != nil
}

// Key returns the correlation key shared with the paired Job.
func (n *Notification) Key() ScheduleKey {
	return ScheduleKey{UserID: n.UserID, BlockID: n.BlockID, ScheduledTime: n.ScheduledTime}
}

// ScheduleKey correlates a Notification with its Job.
type ScheduleKey struct {
	UserID        uuid.UUID
	BlockID       uuid.UUID
	ScheduledTime time.Time
}

// Recipient is the identity provider's view of a user.
type Recipient struct {
	UserID uuid.UUID `json:"user_id" db:"id"`
	Email  string    `json:"email" db:"email"`
	Name   string    `json:"name" db:"name"`
}

// Reminder is everything the mail transport needs to render one message.
type Reminder struct {
	Email      string
	Name       string
	BlockTitle string
	StartTime  time.Time
}
