package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/quiet-hours/internal/model"
)

// All repository interfaces in one file
type (
	// TimeBlockRepository reads quiet-hour blocks and stamps delivery on them.
	TimeBlockRepository interface {
		Create(ctx context.Context, block *model.TimeBlock) error
		// Get returns an error matching apperrors.NotFoundErr when the block is missing.
		Get(ctx context.Context, id uuid.UUID) (*model.TimeBlock, error)
		MarkEmailSent(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	// NotificationRepository is the durable queue of scheduled reminders.
	NotificationRepository interface {
		// CreateWithJob inserts a notification and its ledger entry as one unit.
		// A live duplicate for (user, scheduled time) yields apperrors.DuplicateSchedule.
		CreateWithJob(ctx context.Context, notification *model.Notification, job *model.Job) error
		Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
		// FindDue returns unsent notifications scheduled in [now, now+window].
		FindDue(ctx context.Context, now time.Time, window time.Duration) ([]*model.Notification, error)
		// FindUnsent returns nil, nil when nothing matches.
		FindUnsent(ctx context.Context, userID uuid.UUID, scheduledTime time.Time) (*model.Notification, error)
		// MarkSent closes a notification. A nil sentAt records a close without delivery.
		MarkSent(ctx context.Context, id uuid.UUID, sentAt *time.Time) error
		MarkAllSentForBlock(ctx context.Context, blockID uuid.UUID) (int64, error)
	}

	// JobRepository is the claim/outcome ledger.
	JobRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
		// FindRunning returns nil, nil when the user has no running job.
		FindRunning(ctx context.Context, userID uuid.UUID) (*model.Job, error)
		// FindByNotification returns the job created alongside the notification.
		FindByNotification(ctx context.Context, notificationID uuid.UUID) (*model.Job, error)
		// FindByKey prefers a non-terminal job, then the newest one.
		FindByKey(ctx context.Context, key model.ScheduleKey) (*model.Job, error)
		// Claim moves a pending or failed job to running. Anything else, including
		// another running job of the same user, yields apperrors.ClaimConflict.
		Claim(ctx context.Context, id uuid.UUID, now time.Time) (*model.Job, error)
		// SetStatus applies a transition validated against the job state machine.
		SetStatus(ctx context.Context, id uuid.UUID, status model.JobStatus, errMsg *string) error
		CancelPendingForBlock(ctx context.Context, blockID uuid.UUID) (int64, error)
		// ReleaseStale fails running jobs claimed before the cutoff.
		ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error)
	}

	// UserRepository is the identity lookup.
	UserRepository interface {
		GetRecipient(ctx context.Context, userID uuid.UUID) (*model.Recipient, error)
	}

	// Store bundles every repository a backend provides.
	Store interface {
		Blocks() TimeBlockRepository
		Notifications() NotificationRepository
		Jobs() JobRepository
		Users() UserRepository
		Ping(ctx context.Context) error
		Close() error
	}
)
