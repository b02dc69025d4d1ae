package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc/pool"

	"github.com/jwalitptl/quiet-hours/internal/email"
	"github.com/jwalitptl/quiet-hours/internal/model"
	"github.com/jwalitptl/quiet-hours/internal/repository"
	"github.com/jwalitptl/quiet-hours/internal/service/identity"
	apperrors "github.com/jwalitptl/quiet-hours/pkg/errors"
	"github.com/jwalitptl/quiet-hours/pkg/logger"
	"github.com/jwalitptl/quiet-hours/pkg/metrics"
)

const (
	DefaultWindow          = 5 * time.Minute
	DefaultConcurrency     = 4
	DefaultDeliveryTimeout = 30 * time.Second
	DefaultClaimTTL        = 10 * time.Minute
)

type DispatcherConfig struct {
	// Window is the look-ahead: notifications due in [now, now+Window] are processed.
	Window          time.Duration
	Concurrency     int
	DeliveryTimeout time.Duration
	// ClaimTTL is how long a job may stay running before the next tick
	// assumes its owner crashed and releases it to failed.
	ClaimTTL time.Duration
}

// OutcomePublisher receives every outcome after it has been persisted.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, outcome interface{}) error
}

type Dispatcher struct {
	blocks        repository.TimeBlockRepository
	notifications repository.NotificationRepository
	jobs          repository.JobRepository
	identity      identity.Service
	sender        email.Sender
	publisher     OutcomePublisher
	config        DispatcherConfig
	logger        *logger.Logger
	metrics       *metrics.Metrics
}

func NewDispatcher(
	store repository.Store,
	identity identity.Service,
	sender email.Sender,
	publisher OutcomePublisher,
	config DispatcherConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Dispatcher {
	// zero or negative values fall back to the defaults
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = DefaultDeliveryTimeout
	}
	if config.ClaimTTL <= 0 {
		config.ClaimTTL = DefaultClaimTTL
	}

	return &Dispatcher{
		blocks:        store.Blocks(),
		notifications: store.Notifications(),
		jobs:          store.Jobs(),
		identity:      identity,
		sender:        sender,
		publisher:     publisher,
		config:        config,
		logger:        logger,
		metrics:       metrics,
	}
}

// RunTick processes every unsent notification due within the window and
// returns one outcome per notification. Only a failure to read the due set
// is returned as an error; per-item failures become outcomes.
func (d *Dispatcher) RunTick(ctx context.Context, now time.Time) ([]model.Outcome, error) {
	timer := prometheus.NewTimer(d.metrics.TickDuration)
	defer timer.ObserveDuration()

	if released, err := d.jobs.ReleaseStale(ctx, now.Add(-d.config.ClaimTTL)); err != nil {
		d.logger.Error(err, "Failed to release stale claims")
	} else if released > 0 {
		d.metrics.StaleClaims.Add(float64(released))
		d.logger.Warn("Released stale claims", "count", released)
	}

	due, err := d.notifications.FindDue(ctx, now, d.config.Window)
	if err != nil {
		return nil, apperrors.NewStorage("find due notifications", err)
	}
	d.metrics.DueQueueSize.Set(float64(len(due)))

	var (
		mu       sync.Mutex
		outcomes = make([]model.Outcome, 0, len(due))
	)

	p := pool.New().WithMaxGoroutines(d.config.Concurrency)
	for _, n := range due {
		n := n
		p.Go(func() {
			outcome := d.processSafe(ctx, n, now)
			d.record(ctx, outcome)

			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
		})
	}
	p.Wait()

	return outcomes, nil
}

// processSafe turns a panic in one item into an error outcome and makes a
// best-effort attempt to release the item's claim.
func (d *Dispatcher) processSafe(ctx context.Context, n *model.Notification, now time.Time) (outcome model.Outcome) {
	var claimed uuid.UUID

	defer func() {
		if r := recover(); r != nil {
			outcome = errorOutcome(n, fmt.Errorf("panic: %v", r))
			if claimed != uuid.Nil {
				d.fail(ctx, claimed, outcome.Detail)
			}
		}
	}()

	return d.process(ctx, n, now, &claimed)
}

func (d *Dispatcher) process(ctx context.Context, n *model.Notification, now time.Time, claimed *uuid.UUID) model.Outcome {
	running, err := d.jobs.FindRunning(ctx, n.UserID)
	if err != nil {
		return errorOutcome(n, apperrors.NewStorage("find running job", err))
	}
	if running != nil {
		return skipped(n, "user has a running job")
	}

	job, err := d.jobs.FindByNotification(ctx, n.ID)
	if err != nil {
		return errorOutcome(n, apperrors.NewStorage("find job", err))
	}
	if job.Status.Terminal() {
		return skipped(n, fmt.Sprintf("job already %s", job.Status))
	}

	if _, err := d.jobs.Claim(ctx, job.ID, now); err != nil {
		if errors.Is(err, apperrors.ClaimConflict) {
			d.metrics.ClaimConflicts.Inc()
			return skipped(n, "already claimed")
		}
		return errorOutcome(n, apperrors.NewStorage("claim job", err))
	}
	*claimed = job.ID

	block, err := d.blocks.Get(ctx, n.BlockID)
	if err != nil && !errors.Is(err, apperrors.NotFoundErr) {
		d.fail(ctx, job.ID, err.Error())
		return errorOutcome(n, apperrors.NewStorage("get block", err))
	}
	if block == nil || !block.IsActive {
		return d.closeWithoutDelivery(ctx, n, job.ID, block == nil)
	}

	recipient, err := d.identity.Lookup(ctx, n.UserID)
	if err != nil {
		d.fail(ctx, job.ID, err.Error())
		return failed(n, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.config.DeliveryTimeout)
	started := time.Now()
	err = d.sender.Send(sendCtx, model.Reminder{
		Email:      recipient.Email,
		Name:       recipient.Name,
		BlockTitle: block.Title,
		StartTime:  block.StartTime,
	})
	cancel()
	d.metrics.DeliveryLatency.Observe(time.Since(started).Seconds())

	if err != nil {
		d.fail(ctx, job.ID, err.Error())
		return failed(n, err)
	}

	return d.recordDelivery(ctx, n, job.ID, now)
}

// recordDelivery persists a successful send. The job is completed first and
// regardless of the other writes so the reminder is never sent twice. The
// writes outlive the caller's context: the mail is already out.
func (d *Dispatcher) recordDelivery(ctx context.Context, n *model.Notification, jobID uuid.UUID, now time.Time) model.Outcome {
	persist := context.WithoutCancel(ctx)
	var firstErr error

	if err := d.jobs.SetStatus(persist, jobID, model.JobStatusCompleted, nil); err != nil {
		firstErr = fmt.Errorf("complete job: %w", err)
	}
	sentAt := now
	if err := d.notifications.MarkSent(persist, n.ID, &sentAt); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("mark notification sent: %w", err)
	}
	if err := d.blocks.MarkEmailSent(persist, n.BlockID, now); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("mark block email sent: %w", err)
	}

	if firstErr != nil {
		return errorOutcome(n, apperrors.NewStorage("record delivery", firstErr))
	}
	return model.Outcome{NotificationID: n.ID, UserID: n.UserID, Status: model.OutcomeSent}
}

// closeWithoutDelivery handles a missing or inactive block: the job is
// completed and the notification closed with no sent time, so it is not
// selected again. The reason travels in the outcome only; last_error stays
// reserved for failures.
func (d *Dispatcher) closeWithoutDelivery(ctx context.Context, n *model.Notification, jobID uuid.UUID, missing bool) model.Outcome {
	detail := "block inactive"
	if missing {
		detail = "block not found"
	}

	persist := context.WithoutCancel(ctx)
	if err := d.jobs.SetStatus(persist, jobID, model.JobStatusCompleted, nil); err != nil {
		return errorOutcome(n, apperrors.NewStorage("complete job", err))
	}
	if err := d.notifications.MarkSent(persist, n.ID, nil); err != nil {
		return errorOutcome(n, apperrors.NewStorage("close notification", err))
	}
	return skipped(n, detail)
}

// fail releases a claimed job to failed so a later tick may retry it.
func (d *Dispatcher) fail(ctx context.Context, jobID uuid.UUID, reason string) {
	if err := d.jobs.SetStatus(context.WithoutCancel(ctx), jobID, model.JobStatusFailed, &reason); err != nil {
		d.logger.Error(err, "Failed to release job", "job_id", jobID.String())
	}
}

func (d *Dispatcher) record(ctx context.Context, o model.Outcome) {
	d.metrics.RemindersProcessed.WithLabelValues(string(o.Status)).Inc()

	fields := []interface{}{
		"notification_id", o.NotificationID.String(),
		"user_id", o.UserID.String(),
		"status", string(o.Status),
	}
	if o.Detail != "" {
		fields = append(fields, "detail", o.Detail)
	}
	switch o.Status {
	case model.OutcomeError:
		d.logger.Warn("Reminder processing error", fields...)
	case model.OutcomeFailed:
		d.logger.Warn("Reminder delivery failed", fields...)
	default:
		d.logger.Info("Reminder processed", fields...)
	}

	if d.publisher != nil {
		if err := d.publisher.PublishOutcome(ctx, o); err != nil {
			d.logger.Warn("Failed to publish outcome", "notification_id", o.NotificationID.String(), "error", err.Error())
		}
	}
}

func skipped(n *model.Notification, detail string) model.Outcome {
	return model.Outcome{NotificationID: n.ID, UserID: n.UserID, Status: model.OutcomeSkipped, Detail: detail}
}

func failed(n *model.Notification, err error) model.Outcome {
	return model.Outcome{NotificationID: n.ID, UserID: n.UserID, Status: model.OutcomeFailed, Detail: err.Error()}
}

func errorOutcome(n *model.Notification, err error) model.Outcome {
	return model.Outcome{NotificationID: n.ID, UserID: n.UserID, Status: model.OutcomeError, Detail: err.Error()}
}
