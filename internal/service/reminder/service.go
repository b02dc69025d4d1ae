package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/quiet-hours/internal/model"
	"github.com/jwalitptl/quiet-hours/internal/repository"
	apperrors "github.com/jwalitptl/quiet-hours/pkg/errors"
	"github.com/jwalitptl/quiet-hours/pkg/logger"
)

const DefaultLeadTime = 10 * time.Minute

type Service interface {
	// Schedule creates a notification and its pending job as one unit.
	Schedule(ctx context.Context, userID, blockID uuid.UUID, scheduledTime time.Time) (*model.Notification, error)
	// ScheduleForBlock schedules the standard reminder LeadTime before the
	// block starts. It returns nil, nil when that instant has already passed.
	ScheduleForBlock(ctx context.Context, block *model.TimeBlock, now time.Time) (*model.Notification, error)
	// Cancel closes every unsent reminder of a block. Safe to repeat.
	Cancel(ctx context.Context, blockID uuid.UUID) (*CancelResult, error)
}

type CancelResult struct {
	NotificationsClosed int64 `json:"notifications_closed"`
	JobsCancelled       int64 `json:"jobs_cancelled"`
}

type service struct {
	notifications repository.NotificationRepository
	jobs          repository.JobRepository
	leadTime      time.Duration
	log           *logger.Logger
}

func NewService(store repository.Store, leadTime time.Duration, log *logger.Logger) Service {
	if leadTime <= 0 {
		leadTime = DefaultLeadTime
	}
	if log == nil {
		log = logger.Nop()
	}
	return &service{
		notifications: store.Notifications(),
		jobs:          store.Jobs(),
		leadTime:      leadTime,
		log:           log,
	}
}

func (s *service) Schedule(ctx context.Context, userID, blockID uuid.UUID, scheduledTime time.Time) (*model.Notification, error) {
	if userID == uuid.Nil || blockID == uuid.Nil {
		return nil, apperrors.BadRequest("user and block are required", nil)
	}
	if scheduledTime.IsZero() {
		return nil, apperrors.BadRequest("scheduled time is required", nil)
	}

	existing, err := s.notifications.FindUnsent(ctx, userID, scheduledTime)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing schedule: %w", err)
	}
	if existing != nil {
		return nil, apperrors.NewDuplicateSchedule(nil)
	}

	n := &model.Notification{UserID: userID, BlockID: blockID, ScheduledTime: scheduledTime}
	j := &model.Job{UserID: userID, BlockID: blockID, ScheduledTime: scheduledTime, Status: model.JobStatusPending}

	// the live-schedule unique index still catches a racing duplicate here
	if err := s.notifications.CreateWithJob(ctx, n, j); err != nil {
		if errors.Is(err, apperrors.DuplicateSchedule) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to schedule reminder: %w", err)
	}

	s.log.Info("reminder scheduled",
		"notification_id", n.ID.String(),
		"user_id", userID.String(),
		"block_id", blockID.String(),
		"scheduled_time", scheduledTime.UTC().Format(time.RFC3339),
	)
	return n, nil
}

func (s *service) ScheduleForBlock(ctx context.Context, block *model.TimeBlock, now time.Time) (*model.Notification, error) {
	if block == nil {
		return nil, apperrors.BadRequest("block is required", nil)
	}
	if !block.IsActive {
		return nil, nil
	}

	at := block.StartTime.Add(-s.leadTime)
	if !at.After(now) {
		return nil, nil
	}
	return s.Schedule(ctx, block.UserID, block.ID, at)
}

func (s *service) Cancel(ctx context.Context, blockID uuid.UUID) (*CancelResult, error) {
	closed, err := s.notifications.MarkAllSentForBlock(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("failed to close notifications: %w", err)
	}

	cancelled, err := s.jobs.CancelPendingForBlock(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel jobs: %w", err)
	}

	if closed > 0 || cancelled > 0 {
		s.log.Info("reminders cancelled",
			"block_id", blockID.String(),
			"notifications_closed", closed,
			"jobs_cancelled", cancelled,
		)
	}
	return &CancelResult{NotificationsClosed: closed, JobsCancelled: cancelled}, nil
}
