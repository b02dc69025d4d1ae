// Package memory is a process-local backend used for tests and local runs.
// It enforces the same invariants as the SQL backends: one live
// notification per (user, scheduled time) and one running job per user.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/quiet-hours/internal/model"
	"github.com/jwalitptl/quiet-hours/internal/repository"
	apperrors "github.com/jwalitptl/quiet-hours/pkg/errors"
)

type Store struct {
	mu            sync.Mutex
	blocks        map[uuid.UUID]model.TimeBlock
	notifications map[uuid.UUID]model.Notification
	jobs          map[uuid.UUID]model.Job
	users         map[uuid.UUID]model.Recipient

	// insertion order of jobs, oldest first
	jobOrder []uuid.UUID
}

func New() *Store {
	return &Store{
		blocks:        make(map[uuid.UUID]model.TimeBlock),
		notifications: make(map[uuid.UUID]model.Notification),
		jobs:          make(map[uuid.UUID]model.Job),
		users:         make(map[uuid.UUID]model.Recipient),
	}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Blocks() repository.TimeBlockRepository           { return blockRepo{s} }
func (s *Store) Notifications() repository.NotificationRepository { return notificationRepo{s} }
func (s *Store) Jobs() repository.JobRepository                   { return jobRepo{s} }
func (s *Store) Users() repository.UserRepository                 { return userRepo{s} }
func (s *Store) Ping(context.Context) error                       { return nil }
func (s *Store) Close() error                                     { return nil }

// PutUser registers an identity for lookups.
func (s *Store) PutUser(r model.Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[r.UserID] = r
}

type blockRepo struct{ s *Store }

func (r blockRepo) Create(_ context.Context, block *model.TimeBlock) error {
	if err := block.Validate(); err != nil {
		return apperrors.BadRequest("invalid block", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	if block.ID == uuid.Nil {
		block.ID = uuid.New()
	}
	block.CreatedAt = now
	block.UpdatedAt = now
	r.s.blocks[block.ID] = *block
	return nil
}

func (r blockRepo) Get(_ context.Context, id uuid.UUID) (*model.TimeBlock, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.blocks[id]
	if !ok {
		return nil, apperrors.NotFound("time block", nil)
	}
	return &b, nil
}

func (r blockRepo) MarkEmailSent(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.blocks[id]
	if !ok {
		return nil
	}
	b.EmailSent = true
	b.EmailSentAt = &at
	b.UpdatedAt = time.Now()
	r.s.blocks[id] = b
	return nil
}

// SetActive flips a block's active flag, standing in for block CRUD.
func (s *Store) SetActive(id uuid.UUID, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.blocks[id]; ok {
		b.IsActive = active
		s.blocks[id] = b
	}
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) CreateWithJob(_ context.Context, n *model.Notification, j *model.Job) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.notifications {
		if !existing.Sent && existing.UserID == n.UserID && existing.ScheduledTime.Equal(n.ScheduledTime) {
			return apperrors.NewDuplicateSchedule(nil)
		}
	}

	now := time.Now()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	n.CreatedAt = now
	j.NotificationID = n.ID
	j.CreatedAt = now
	j.UpdatedAt = now
	if j.Status == "" {
		j.Status = model.JobStatusPending
	}

	r.s.notifications[n.ID] = *n
	r.s.jobs[j.ID] = *j
	r.s.jobOrder = append(r.s.jobOrder, j.ID)
	return nil
}

func (r notificationRepo) Get(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n, ok := r.s.notifications[id]
	if !ok {
		return nil, apperrors.NotFound("notification", nil)
	}
	return &n, nil
}

func (r notificationRepo) FindDue(_ context.Context, now time.Time, window time.Duration) ([]*model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	end := now.Add(window)
	var due []*model.Notification
	for _, n := range r.s.notifications {
		if n.Sent || n.ScheduledTime.Before(now) || n.ScheduledTime.After(end) {
			continue
		}
		n := n
		due = append(due, &n)
	}
	return due, nil
}

func (r notificationRepo) FindUnsent(_ context.Context, userID uuid.UUID, scheduledTime time.Time) (*model.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, n := range r.s.notifications {
		if !n.Sent && n.UserID == userID && n.ScheduledTime.Equal(scheduledTime) {
			n := n
			return &n, nil
		}
	}
	return nil, nil
}

func (r notificationRepo) MarkSent(_ context.Context, id uuid.UUID, sentAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n, ok := r.s.notifications[id]
	if !ok {
		return apperrors.NotFound("notification", nil)
	}
	n.Sent = true
	n.SentAt = sentAt
	r.s.notifications[id] = n
	return nil
}

func (r notificationRepo) MarkAllSentForBlock(_ context.Context, blockID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, notif := range r.s.notifications {
		if notif.BlockID == blockID && !notif.Sent {
			notif.Sent = true
			r.s.notifications[id] = notif
			n++
		}
	}
	return n, nil
}

type jobRepo struct{ s *Store }

func (r jobRepo) Get(_ context.Context, id uuid.UUID) (*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	j, ok := r.s.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", nil)
	}
	return &j, nil
}

func (r jobRepo) FindRunning(_ context.Context, userID uuid.UUID) (*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.runningLocked(userID), nil
}

func (s *Store) runningLocked(userID uuid.UUID) *model.Job {
	for _, j := range s.jobs {
		if j.UserID == userID && j.Status == model.JobStatusRunning {
			j := j
			return &j
		}
	}
	return nil
}

func (r jobRepo) FindByNotification(_ context.Context, notificationID uuid.UUID) (*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, j := range r.s.jobs {
		if j.NotificationID == notificationID {
			j := j
			return &j, nil
		}
	}
	return nil, apperrors.NotFound("job", nil)
}

func (r jobRepo) FindByKey(_ context.Context, key model.ScheduleKey) (*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var newestTerminal *model.Job
	for i := len(r.s.jobOrder) - 1; i >= 0; i-- {
		j := r.s.jobs[r.s.jobOrder[i]]
		if j.UserID != key.UserID || j.BlockID != key.BlockID || !j.ScheduledTime.Equal(key.ScheduledTime) {
			continue
		}
		if !j.Status.Terminal() {
			return &j, nil
		}
		if newestTerminal == nil {
			newestTerminal = &j
		}
	}
	if newestTerminal == nil {
		return nil, apperrors.NotFound("job", nil)
	}
	return newestTerminal, nil
}

func (r jobRepo) Claim(_ context.Context, id uuid.UUID, now time.Time) (*model.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	j, ok := r.s.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", nil)
	}
	if !j.Status.Claimable() || r.s.runningLocked(j.UserID) != nil {
		return nil, apperrors.NewClaimConflict(id)
	}

	j.Status = model.JobStatusRunning
	j.Attempts++
	j.ClaimedAt = &now
	j.UpdatedAt = time.Now()
	r.s.jobs[id] = j
	return &j, nil
}

func (r jobRepo) SetStatus(_ context.Context, id uuid.UUID, status model.JobStatus, errMsg *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	j, ok := r.s.jobs[id]
	if !ok {
		return apperrors.NotFound("job", nil)
	}
	if !j.Status.CanTransitionTo(status) {
		return apperrors.NewIllegalTransition(string(j.Status), string(status))
	}

	j.Status = status
	j.LastError = errMsg
	j.UpdatedAt = time.Now()
	r.s.jobs[id] = j
	return nil
}

func (r jobRepo) CancelPendingForBlock(_ context.Context, blockID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, j := range r.s.jobs {
		if j.BlockID == blockID && j.Status == model.JobStatusPending {
			j.Status = model.JobStatusCancelled
			j.UpdatedAt = time.Now()
			r.s.jobs[id] = j
			n++
		}
	}
	return n, nil
}

func (r jobRepo) ReleaseStale(_ context.Context, claimedBefore time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	msg := "claim expired"
	var n int64
	for id, j := range r.s.jobs {
		if j.Status == model.JobStatusRunning && j.ClaimedAt != nil && j.ClaimedAt.Before(claimedBefore) {
			j.Status = model.JobStatusFailed
			j.LastError = &msg
			j.UpdatedAt = time.Now()
			r.s.jobs[id] = j
			n++
		}
	}
	return n, nil
}

type userRepo struct{ s *Store }

func (r userRepo) GetRecipient(_ context.Context, userID uuid.UUID) (*model.Recipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return nil, apperrors.NewRecipientNotFound(userID, nil)
	}
	return &u, nil
}
