package model

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the ledger state of one delivery attempt.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// jobTransitions lists, for every status, the statuses it may move to.
// failed -> running is the reclaim path used while the reminder is still
// inside the look-ahead window.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:   {JobStatusRunning, JobStatusCancelled},
	JobStatusRunning:   {JobStatusCompleted, JobStatusFailed},
	JobStatusFailed:    {JobStatusRunning},
	JobStatusCompleted: nil,
	JobStatusCancelled: nil,
}

func (s JobStatus) Valid() bool {
	_, ok := jobTransitions[s]
	return ok
}

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s.Valid() && len(jobTransitions[s]) == 0
}

// Claimable reports whether a job in this status may be moved to running.
func (s JobStatus) Claimable() bool {
	return s.CanTransitionTo(JobStatusRunning)
}

func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SourcesOf returns every status that may transition into target. Storage
// backends use it to build conditional updates.
func SourcesOf(target JobStatus) []JobStatus {
	var sources []JobStatus
	for _, from := range []JobStatus{JobStatusPending, JobStatusRunning, JobStatusFailed, JobStatusCompleted, JobStatusCancelled} {
		if from.CanTransitionTo(target) {
			sources = append(sources, from)
		}
	}
	return sources
}

// Job is the ledger entry paired 1:1 with a Notification through
// NotificationID. The schedule key alone is not unique across history: a
// cancelled job and its replacement share it.
type Job struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	NotificationID uuid.UUID  `json:"notification_id" db:"notification_id"`
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	BlockID        uuid.UUID  `json:"block_id" db:"block_id"`
	ScheduledTime  time.Time  `json:"scheduled_time" db:"scheduled_time"`
	Status         JobStatus  `json:"status" db:"status"`
	Attempts       int        `json:"attempts" db:"attempts"`
	LastError      *string    `json:"last_error,omitempty" db:"last_error"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty" db:"claimed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

func (j *Job) Key() ScheduleKey {
	return ScheduleKey{UserID: j.UserID, BlockID: j.BlockID, ScheduledTime: j.ScheduledTime}
}
