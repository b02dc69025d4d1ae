package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/quiet-hours/internal/model"
	apperrors "github.com/jwalitptl/quiet-hours/pkg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "qh.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func schedule(t *testing.T, s *Store, userID, blockID uuid.UUID, at time.Time) (*model.Notification, *model.Job) {
	t.Helper()
	n := &model.Notification{UserID: userID, BlockID: blockID, ScheduledTime: at}
	j := &model.Job{UserID: userID, BlockID: blockID, ScheduledTime: at}
	require.NoError(t, s.Notifications().CreateWithJob(context.Background(), n, j))
	return n, j
}

func TestBlocks_CreateGetMarkSent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Now().Add(time.Hour).Truncate(time.Millisecond)

	block := &model.TimeBlock{UserID: uuid.New(), Title: "Deep work", StartTime: start, EndTime: start.Add(time.Hour), IsActive: true}
	require.NoError(t, s.Blocks().Create(ctx, block))

	got, err := s.Blocks().Get(ctx, block.ID)
	require.NoError(t, err)
	assert.Equal(t, "Deep work", got.Title)
	assert.True(t, got.StartTime.Equal(start))
	assert.True(t, got.IsActive)
	assert.Nil(t, got.Description)

	require.NoError(t, s.Blocks().MarkEmailSent(ctx, block.ID, start))
	got, err = s.Blocks().Get(ctx, block.ID)
	require.NoError(t, err)
	assert.True(t, got.EmailSent)
	require.NotNil(t, got.EmailSentAt)

	_, err = s.Blocks().Get(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.NotFoundErr)
}

func TestNotifications_DuplicateLiveSchedule(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user, block := uuid.New(), uuid.New()
	at := time.Now().Add(time.Hour).Truncate(time.Millisecond)

	first, _ := schedule(t, s, user, block, at)

	err := s.Notifications().CreateWithJob(ctx,
		&model.Notification{UserID: user, BlockID: block, ScheduledTime: at},
		&model.Job{UserID: user, BlockID: block, ScheduledTime: at})
	assert.ErrorIs(t, err, apperrors.DuplicateSchedule)

	// once closed, the same instant may be scheduled again
	require.NoError(t, s.Notifications().MarkSent(ctx, first.ID, nil))
	schedule(t, s, user, block, at)
}

func TestNotifications_FindDueWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)
	user := uuid.New()

	inside, _ := schedule(t, s, user, uuid.New(), now.Add(2*time.Minute))
	schedule(t, s, user, uuid.New(), now.Add(10*time.Minute))
	schedule(t, s, user, uuid.New(), now.Add(-time.Minute))

	due, err := s.Notifications().FindDue(ctx, now, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, inside.ID, due[0].ID)
}

func TestJobs_ClaimExclusivePerUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)
	user := uuid.New()

	_, first := schedule(t, s, user, uuid.New(), now.Add(time.Minute))
	_, second := schedule(t, s, user, uuid.New(), now.Add(2*time.Minute))

	claimed, err := s.Jobs().Claim(ctx, first.ID, now)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)

	_, err = s.Jobs().Claim(ctx, second.ID, now)
	assert.ErrorIs(t, err, apperrors.ClaimConflict)

	_, err = s.Jobs().Claim(ctx, first.ID, now)
	assert.ErrorIs(t, err, apperrors.ClaimConflict)

	running, err := s.Jobs().FindRunning(ctx, user)
	require.NoError(t, err)
	require.NotNil(t, running)
	assert.Equal(t, first.ID, running.ID)
}

func TestJobs_StatusTransitions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)
	_, job := schedule(t, s, uuid.New(), uuid.New(), now.Add(time.Minute))

	err := s.Jobs().SetStatus(ctx, job.ID, model.JobStatusCompleted, nil)
	assert.ErrorIs(t, err, apperrors.IllegalTransitionErr)

	_, err = s.Jobs().Claim(ctx, job.ID, now)
	require.NoError(t, err)

	msg := "smtp down"
	require.NoError(t, s.Jobs().SetStatus(ctx, job.ID, model.JobStatusFailed, &msg))

	got, err := s.Jobs().Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "smtp down", *got.LastError)

	// failed is reclaimable
	again, err := s.Jobs().Claim(ctx, job.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 2, again.Attempts)

	require.NoError(t, s.Jobs().SetStatus(ctx, job.ID, model.JobStatusCompleted, nil))
	err = s.Jobs().SetStatus(ctx, job.ID, model.JobStatusPending, nil)
	assert.ErrorIs(t, err, apperrors.IllegalTransitionErr)
}

func TestJobs_ReleaseStale(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)
	_, job := schedule(t, s, uuid.New(), uuid.New(), now.Add(time.Minute))

	_, err := s.Jobs().Claim(ctx, job.ID, now.Add(-20*time.Minute))
	require.NoError(t, err)

	n, err := s.Jobs().ReleaseStale(ctx, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := s.Jobs().Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
}

func TestCancelForBlock(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)
	user, block := uuid.New(), uuid.New()
	n, job := schedule(t, s, user, block, now.Add(time.Hour))

	closed, err := s.Notifications().MarkAllSentForBlock(ctx, block)
	require.NoError(t, err)
	assert.EqualValues(t, 1, closed)

	cancelled, err := s.Jobs().CancelPendingForBlock(ctx, block)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cancelled)

	got, err := s.Notifications().Get(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.Sent)
	assert.Nil(t, got.SentAt)

	j, err := s.Jobs().FindByKey(ctx, job.Key())
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, j.Status)
}

func TestUsers_GetRecipient(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := s.Users().GetRecipient(ctx, id)
	assert.ErrorIs(t, err, apperrors.RecipientNotFound)

	require.NoError(t, s.PutUser(ctx, model.Recipient{UserID: id, Email: "ada@example.com", Name: "Ada"}))
	r, err := s.Users().GetRecipient(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", r.Email)
}

func TestJobs_RescheduleAfterCancelPairsByNotification(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	user, block := uuid.New(), uuid.New()

	first, firstJob := schedule(t, s, user, block, at)
	_, err := s.Notifications().MarkAllSentForBlock(ctx, block)
	require.NoError(t, err)
	_, err = s.Jobs().CancelPendingForBlock(ctx, block)
	require.NoError(t, err)
	// same key, very likely the same created_at millisecond
	second, secondJob := schedule(t, s, user, block, at)

	got, err := s.Jobs().FindByNotification(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, secondJob.ID, got.ID)
	assert.Equal(t, second.ID, got.NotificationID)
	assert.Equal(t, model.JobStatusPending, got.Status)

	got, err = s.Jobs().FindByNotification(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, firstJob.ID, got.ID)
	assert.Equal(t, model.JobStatusCancelled, got.Status)

	byKey, err := s.Jobs().FindByKey(ctx, secondJob.Key())
	require.NoError(t, err)
	assert.Equal(t, secondJob.ID, byKey.ID)

	_, err = s.Jobs().FindByNotification(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.NotFoundErr)
}
