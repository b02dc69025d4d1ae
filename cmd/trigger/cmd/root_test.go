package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/quiet-hours/pkg/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	direct, verbose, schedule, tokenUser = false, false, "", ""

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err = rootCmd.Execute()
	return buf.String(), err
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"once", "run", "watch", "token"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestOnce_Direct(t *testing.T) {
	t.Setenv("QH_DATABASE_DRIVER", "memory")
	t.Setenv("QH_LOG_LEVEL", "error")

	out, err := execute(t, "once", "--direct")
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "Notifications processed", resp["message"])
	assert.EqualValues(t, 0, resp["processed"])
}

func TestOnce_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"message":"Notifications processed","processed":1,"results":[{"notification_id":"` +
			uuid.NewString() + `","user_id":"` + uuid.NewString() + `","status":"sent"}]}`))
	}))
	defer srv.Close()

	t.Setenv("QH_CRON_API_URL", srv.URL)
	t.Setenv("QH_CRON_SECRET", "s3cret")

	out, err := execute(t, "once", "-v")
	require.NoError(t, err)
	assert.Contains(t, out, `"sent": 1`)
	assert.Contains(t, out, `"results"`)

	t.Setenv("QH_CRON_SECRET", "wrong")
	_, err = execute(t, "once")
	assert.Error(t, err)
}

func TestRun_RejectsBadSchedule(t *testing.T) {
	t.Setenv("QH_DATABASE_DRIVER", "memory")
	_, err := execute(t, "run", "--direct", "--schedule", "not a schedule")
	assert.Error(t, err)
}

func TestWatch_RequiresRedis(t *testing.T) {
	_, err := execute(t, "watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis is not enabled")
}

func TestToken_MintsVerifiableToken(t *testing.T) {
	t.Setenv("QH_AUTH_JWT_SECRET", "jwt-secret")
	userID := uuid.New()

	out, err := execute(t, "token", "--user", userID.String())
	require.NoError(t, err)

	got, err := auth.NewJWTService("jwt-secret").ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestToken_RequiresSecret(t *testing.T) {
	_, err := execute(t, "token", "--user", uuid.NewString())
	assert.Error(t, err)
}
