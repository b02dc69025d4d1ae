package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/jwalitptl/quiet-hours/internal/config"
	"github.com/jwalitptl/quiet-hours/internal/repository"
)

func NewDB(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := Migrate(db.DB); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

// Store is the PostgreSQL implementation of repository.Store.
type Store struct {
	base BaseRepository
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *sqlx.DB) *Store {
	return &Store{base: NewBaseRepository(db)}
}

func (s *Store) Blocks() repository.TimeBlockRepository {
	return &timeBlockRepository{s.base}
}

func (s *Store) Notifications() repository.NotificationRepository {
	return &notificationRepository{s.base}
}

func (s *Store) Jobs() repository.JobRepository {
	return &jobRepository{s.base}
}

func (s *Store) Users() repository.UserRepository {
	return &userRepository{s.base}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.base.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.base.db.Close()
}
