// Package sqlite is the single-node backend on the pure-Go SQLite driver.
// Timestamps are stored as unix milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/jwalitptl/quiet-hours/internal/model"
	"github.com/jwalitptl/quiet-hours/internal/repository"
	apperrors "github.com/jwalitptl/quiet-hours/pkg/errors"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type Store struct {
	db *sqlx.DB
}

var _ repository.Store = (*Store)(nil)

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection serializes writers, which also makes Claim atomic
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Blocks() repository.TimeBlockRepository           { return blockRepo{s.db} }
func (s *Store) Notifications() repository.NotificationRepository { return notificationRepo{s.db} }
func (s *Store) Jobs() repository.JobRepository                   { return jobRepo{s.db} }
func (s *Store) Users() repository.UserRepository                 { return userRepo{s.db} }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutUser inserts or replaces an identity row.
func (s *Store) PutUser(ctx context.Context, r model.Recipient) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, email, name, created_at) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET email=excluded.email, name=excluded.name`,
		r.UserID.String(), r.Email, r.Name, time.Now().UnixMilli(),
	)
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func nullMs(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromNullMs(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func fromNullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

type blockRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	StartTime   int64          `db:"start_time"`
	EndTime     int64          `db:"end_time"`
	IsActive    bool           `db:"is_active"`
	EmailSent   bool           `db:"email_sent"`
	EmailSentAt sql.NullInt64  `db:"email_sent_at"`
	CreatedAt   int64          `db:"created_at"`
	UpdatedAt   int64          `db:"updated_at"`
}

func (r blockRow) model() *model.TimeBlock {
	return &model.TimeBlock{
		ID:          uuid.MustParse(r.ID),
		UserID:      uuid.MustParse(r.UserID),
		Title:       r.Title,
		Description: fromNullStr(r.Description),
		StartTime:   time.UnixMilli(r.StartTime),
		EndTime:     time.UnixMilli(r.EndTime),
		IsActive:    r.IsActive,
		EmailSent:   r.EmailSent,
		EmailSentAt: fromNullMs(r.EmailSentAt),
		CreatedAt:   time.UnixMilli(r.CreatedAt),
		UpdatedAt:   time.UnixMilli(r.UpdatedAt),
	}
}

type notificationRow struct {
	ID            string        `db:"id"`
	UserID        string        `db:"user_id"`
	BlockID       string        `db:"block_id"`
	ScheduledTime int64         `db:"scheduled_time"`
	Sent          bool          `db:"sent"`
	SentAt        sql.NullInt64 `db:"sent_at"`
	CreatedAt     int64         `db:"created_at"`
}

func (r notificationRow) model() *model.Notification {
	return &model.Notification{
		ID:            uuid.MustParse(r.ID),
		UserID:        uuid.MustParse(r.UserID),
		BlockID:       uuid.MustParse(r.BlockID),
		ScheduledTime: time.UnixMilli(r.ScheduledTime),
		Sent:          r.Sent,
		SentAt:        fromNullMs(r.SentAt),
		CreatedAt:     time.UnixMilli(r.CreatedAt),
	}
}

type jobRow struct {
	ID             string         `db:"id"`
	NotificationID string         `db:"notification_id"`
	UserID         string         `db:"user_id"`
	BlockID        string         `db:"block_id"`
	ScheduledTime  int64          `db:"scheduled_time"`
	Status         string         `db:"status"`
	Attempts       int            `db:"attempts"`
	LastError      sql.NullString `db:"last_error"`
	ClaimedAt      sql.NullInt64  `db:"claimed_at"`
	CreatedAt      int64          `db:"created_at"`
	UpdatedAt      int64          `db:"updated_at"`
}

func (r jobRow) model() *model.Job {
	return &model.Job{
		ID:             uuid.MustParse(r.ID),
		NotificationID: uuid.MustParse(r.NotificationID),
		UserID:         uuid.MustParse(r.UserID),
		BlockID:        uuid.MustParse(r.BlockID),
		ScheduledTime:  time.UnixMilli(r.ScheduledTime),
		Status:         model.JobStatus(r.Status),
		Attempts:       r.Attempts,
		LastError:      fromNullStr(r.LastError),
		ClaimedAt:      fromNullMs(r.ClaimedAt),
		CreatedAt:      time.UnixMilli(r.CreatedAt),
		UpdatedAt:      time.UnixMilli(r.UpdatedAt),
	}
}

type blockRepo struct{ db *sqlx.DB }

func (r blockRepo) Create(ctx context.Context, b *model.TimeBlock) error {
	if err := b.Validate(); err != nil {
		return apperrors.BadRequest("invalid block", err)
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO time_blocks(id, user_id, title, description, start_time, end_time,
			is_active, email_sent, email_sent_at, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		b.ID.String(), b.UserID.String(), b.Title, b.Description, ms(b.StartTime), ms(b.EndTime),
		b.IsActive, b.EmailSent, nullMs(b.EmailSentAt), ms(b.CreatedAt), ms(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create time block: %w", err)
	}
	return nil
}

func (r blockRepo) Get(ctx context.Context, id uuid.UUID) (*model.TimeBlock, error) {
	var row blockRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM time_blocks WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("time block", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get time block: %w", err)
	}
	return row.model(), nil
}

func (r blockRepo) MarkEmailSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE time_blocks SET email_sent = 1, email_sent_at = ?, updated_at = ? WHERE id = ?`,
		ms(at), time.Now().UnixMilli(), id.String(),
	)
	return err
}

// SetActive toggles a block's active flag.
func (s *Store) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE time_blocks SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UnixMilli(), id.String())
	return err
}

type notificationRepo struct{ db *sqlx.DB }

func (r notificationRepo) CreateWithJob(ctx context.Context, n *model.Notification, j *model.Job) error {
	now := time.Now()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Status == "" {
		j.Status = model.JobStatusPending
	}
	j.NotificationID = n.ID
	n.CreatedAt, j.CreatedAt, j.UpdatedAt = now, now, now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO notifications(id, user_id, block_id, scheduled_time, sent, sent_at, created_at)
		 VALUES(?,?,?,?,?,?,?)`,
		n.ID.String(), n.UserID.String(), n.BlockID.String(), ms(n.ScheduledTime), n.Sent, nullMs(n.SentAt), ms(now),
	); err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewDuplicateSchedule(err)
		}
		return fmt.Errorf("failed to create notification: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO jobs(id, notification_id, user_id, block_id, scheduled_time, status, attempts, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,0,?,?)`,
		j.ID.String(), j.NotificationID.String(), j.UserID.String(), j.BlockID.String(), ms(j.ScheduledTime), string(j.Status), ms(now), ms(now),
	); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return tx.Commit()
}

func (r notificationRepo) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	var row notificationRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM notifications WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("notification", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return row.model(), nil
}

func (r notificationRepo) FindDue(ctx context.Context, now time.Time, window time.Duration) ([]*model.Notification, error) {
	var rows []notificationRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM notifications
		 WHERE sent = 0 AND scheduled_time >= ? AND scheduled_time <= ?
		 ORDER BY scheduled_time`,
		ms(now), ms(now.Add(window)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find due notifications: %w", err)
	}

	out := make([]*model.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

func (r notificationRepo) FindUnsent(ctx context.Context, userID uuid.UUID, scheduledTime time.Time) (*model.Notification, error) {
	var row notificationRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM notifications WHERE user_id = ? AND scheduled_time = ? AND sent = 0 LIMIT 1`,
		userID.String(), ms(scheduledTime),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find unsent notification: %w", err)
	}
	return row.model(), nil
}

func (r notificationRepo) MarkSent(ctx context.Context, id uuid.UUID, sentAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET sent = 1, sent_at = ? WHERE id = ?`, nullMs(sentAt), id.String())
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("notification", nil)
	}
	return nil
}

func (r notificationRepo) MarkAllSentForBlock(ctx context.Context, blockID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET sent = 1 WHERE block_id = ? AND sent = 0`, blockID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to close block notifications: %w", err)
	}
	return res.RowsAffected()
}

type jobRepo struct{ db *sqlx.DB }

func (r jobRepo) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	var row jobRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM jobs WHERE id = ?`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("job", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return row.model(), nil
}

func (r jobRepo) FindRunning(ctx context.Context, userID uuid.UUID) (*model.Job, error) {
	var row jobRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM jobs WHERE user_id = ? AND status = 'running' LIMIT 1`, userID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find running job: %w", err)
	}
	return row.model(), nil
}

func (r jobRepo) FindByNotification(ctx context.Context, notificationID uuid.UUID) (*model.Job, error) {
	var row jobRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM jobs WHERE notification_id = ?`, notificationID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("job", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job for notification: %w", err)
	}
	return row.model(), nil
}

// created_at has millisecond resolution, so rowid breaks ties between jobs
// inserted within the same millisecond.
func (r jobRepo) FindByKey(ctx context.Context, key model.ScheduleKey) (*model.Job, error) {
	var row jobRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM jobs WHERE user_id = ? AND block_id = ? AND scheduled_time = ?
		 ORDER BY status IN ('completed', 'cancelled'), created_at DESC, rowid DESC LIMIT 1`,
		key.UserID.String(), key.BlockID.String(), ms(key.ScheduledTime),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("job", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job: %w", err)
	}
	return row.model(), nil
}

func (r jobRepo) Claim(ctx context.Context, id uuid.UUID, now time.Time) (*model.Job, error) {
	query, args, err := sqlx.In(
		`UPDATE jobs SET status = 'running', attempts = attempts + 1, claimed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?)
		 RETURNING *`,
		ms(now), time.Now().UnixMilli(), id.String(), statusStrings(model.SourcesOf(model.JobStatusRunning)),
	)
	if err != nil {
		return nil, err
	}

	var row jobRow
	err = r.db.GetContext(ctx, &row, r.db.Rebind(query), args...)
	switch {
	case err == nil:
		return row.model(), nil
	case isUniqueViolation(err):
		return nil, apperrors.NewClaimConflict(id)
	case errors.Is(err, sql.ErrNoRows):
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, apperrors.NewClaimConflict(id)
	default:
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
}

func (r jobRepo) SetStatus(ctx context.Context, id uuid.UUID, status model.JobStatus, errMsg *string) error {
	sources := model.SourcesOf(status)
	if len(sources) == 0 {
		current, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		return apperrors.NewIllegalTransition(string(current.Status), string(status))
	}

	query, args, err := sqlx.In(
		`UPDATE jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ? AND status IN (?)`,
		string(status), errMsg, time.Now().UnixMilli(), id.String(), statusStrings(sources),
	)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewClaimConflict(id)
		}
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return apperrors.NewIllegalTransition(string(current.Status), string(status))
}

func (r jobRepo) CancelPendingForBlock(ctx context.Context, blockID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'cancelled', updated_at = ? WHERE block_id = ? AND status = 'pending'`,
		time.Now().UnixMilli(), blockID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel jobs: %w", err)
	}
	return res.RowsAffected()
}

func (r jobRepo) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'failed', last_error = 'claim expired', updated_at = ?
		 WHERE status = 'running' AND claimed_at < ?`,
		time.Now().UnixMilli(), ms(claimedBefore),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func statusStrings(statuses []model.JobStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

type userRepo struct{ db *sqlx.DB }

func (r userRepo) GetRecipient(ctx context.Context, userID uuid.UUID) (*model.Recipient, error) {
	var row struct {
		ID    string `db:"id"`
		Email string `db:"email"`
		Name  string `db:"name"`
	}
	err := r.db.GetContext(ctx, &row, `SELECT id, email, name FROM users WHERE id = ?`, userID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewRecipientNotFound(userID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipient: %w", err)
	}
	return &model.Recipient{UserID: userID, Email: row.Email, Name: row.Name}, nil
}
