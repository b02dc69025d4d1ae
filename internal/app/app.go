// Package app assembles the long-lived dependencies shared by the API server
// and the trigger CLI.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jwalitptl/quiet-hours/internal/config"
	"github.com/jwalitptl/quiet-hours/internal/email"
	"github.com/jwalitptl/quiet-hours/internal/repository"
	"github.com/jwalitptl/quiet-hours/internal/repository/memory"
	"github.com/jwalitptl/quiet-hours/internal/repository/postgres"
	"github.com/jwalitptl/quiet-hours/internal/repository/sqlite"
	"github.com/jwalitptl/quiet-hours/internal/service/identity"
	"github.com/jwalitptl/quiet-hours/internal/worker"
	"github.com/jwalitptl/quiet-hours/pkg/logger"
	"github.com/jwalitptl/quiet-hours/pkg/messaging"
	"github.com/jwalitptl/quiet-hours/pkg/messaging/redis"
	"github.com/jwalitptl/quiet-hours/pkg/metrics"
)

const MetricsNamespace = "quiet_hours"

type App struct {
	Config     *config.Config
	Logger     *logger.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Store      repository.Store
	Broker     messaging.Broker
	Publisher  *messaging.OutcomePublisher
	Sender     email.Sender
	Dispatcher *worker.Dispatcher
}

// New opens the configured store and broker. Close releases both.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(MetricsNamespace, reg)

	store, err := OpenStore(cfg.Database)
	if err != nil {
		return nil, err
	}

	var broker messaging.Broker = messaging.NopBroker{}
	if cfg.Redis.Enabled {
		rb, err := redis.NewRedisBroker(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log, m)
		if err != nil {
			store.Close()
			return nil, err
		}
		broker = rb
	}
	publisher := messaging.NewOutcomePublisher(broker, cfg.Redis.Channel)

	var sender email.Sender
	if cfg.SMTP.Host == "" {
		log.Warn("SMTP host not configured, reminders will only be logged")
		sender = email.NewLogSender(log)
	} else {
		sender = email.NewSMTPSender(cfg.SMTP)
	}

	dispatcher := worker.NewDispatcher(
		store,
		identity.NewService(store.Users(), cfg.Identity.CacheTTL),
		sender,
		publisher,
		worker.DispatcherConfig{
			Window:          cfg.Dispatcher.Window,
			Concurrency:     cfg.Dispatcher.Concurrency,
			DeliveryTimeout: cfg.Dispatcher.DeliveryTimeout,
			ClaimTTL:        cfg.Dispatcher.ClaimTTL,
		},
		log,
		m,
	)

	return &App{
		Config:     cfg,
		Logger:     log,
		Registry:   reg,
		Metrics:    m,
		Store:      store,
		Broker:     broker,
		Publisher:  publisher,
		Sender:     sender,
		Dispatcher: dispatcher,
	}, nil
}

// OpenStore returns the backend selected by cfg.Driver.
func OpenStore(cfg config.DatabaseConfig) (repository.Store, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := postgres.NewDB(cfg)
		if err != nil {
			return nil, err
		}
		return postgres.NewStore(db), nil
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func (a *App) Close() error {
	if err := a.Broker.Close(); err != nil {
		a.Logger.Warn("Failed to close broker", "error", err.Error())
	}
	return a.Store.Close()
}
