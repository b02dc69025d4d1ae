package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/quiet-hours/internal/config"
	"github.com/jwalitptl/quiet-hours/internal/email"
	"github.com/jwalitptl/quiet-hours/internal/repository/memory"
	"github.com/jwalitptl/quiet-hours/internal/repository/sqlite"
	"github.com/jwalitptl/quiet-hours/pkg/logger"
	"github.com/jwalitptl/quiet-hours/pkg/messaging"
)

func TestOpenStore(t *testing.T) {
	s, err := OpenStore(config.DatabaseConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	s, err = OpenStore(config.DatabaseConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "qh.db")})
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, s)
	require.NoError(t, s.Close())

	_, err = OpenStore(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestNew_MemoryWithoutRedisOrSMTP(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "memory"},
		Redis:    config.RedisConfig{Channel: "reminders.outcomes"},
		Identity: config.IdentityConfig{CacheTTL: time.Minute},
	}

	a, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, messaging.NopBroker{}, a.Broker)
	assert.IsType(t, &email.LogSender{}, a.Sender)
	assert.Equal(t, "reminders.outcomes", a.Publisher.Channel())

	outcomes, err := a.Dispatcher.RunTick(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}
