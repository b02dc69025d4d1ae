package model

import "github.com/google/uuid"

type OutcomeStatus string

const (
	OutcomeSent    OutcomeStatus = "sent"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeError   OutcomeStatus = "error"
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Outcome is the per-notification result of one dispatcher tick.
type Outcome struct {
	NotificationID uuid.UUID     `json:"notification_id"`
	UserID         uuid.UUID     `json:"user_id"`
	Status         OutcomeStatus `json:"status"`
	Detail         string        `json:"detail,omitempty"`
}
