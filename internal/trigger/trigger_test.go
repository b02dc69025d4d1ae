package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cronHandler "github.com/jwalitptl/quiet-hours/internal/handler/cron"
	"github.com/jwalitptl/quiet-hours/internal/model"
	"github.com/jwalitptl/quiet-hours/pkg/logger"
)

func TestHTTPTrigger_SendsSecretAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(cronHandler.ProcessResponse{
			Message:   "Notifications processed",
			Processed: 2,
			Results: []model.Outcome{
				{NotificationID: uuid.New(), Status: model.OutcomeSent},
				{NotificationID: uuid.New(), Status: model.OutcomeSkipped},
			},
		})
	}))
	defer srv.Close()

	resp, err := NewHTTPTrigger(srv.URL, "s3cret", time.Second).Fire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Processed)

	counts := Summarize(resp)
	assert.Equal(t, 1, counts[model.OutcomeSent])
	assert.Equal(t, 1, counts[model.OutcomeSkipped])
}

func TestHTTPTrigger_NonOKIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"success":false}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewHTTPTrigger(srv.URL, "wrong", time.Second).Fire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

type fakeTicker struct {
	calls int32
	err   error
}

func (f *fakeTicker) RunTick(_ context.Context, now time.Time) ([]model.Outcome, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return []model.Outcome{{Status: model.OutcomeSent}}, nil
}

func TestDirectTrigger(t *testing.T) {
	ft := &fakeTicker{}
	resp, err := NewDirectTrigger(ft).Fire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Processed)

	ft.err = errors.New("db down")
	_, err = NewDirectTrigger(ft).Fire(context.Background())
	assert.Error(t, err)
}

func TestNewScheduler_RejectsBadExpression(t *testing.T) {
	_, err := NewScheduler("every minute please", NewDirectTrigger(&fakeTicker{}), 0, logger.Nop())
	assert.Error(t, err)
}

func TestScheduler_FiresAndStops(t *testing.T) {
	ft := &fakeTicker{}
	s, err := NewScheduler("@every 1s", NewDirectTrigger(ft), time.Second, logger.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&ft.calls) > 0 }, 3*time.Second, 50*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_FireLogsErrors(t *testing.T) {
	s, err := NewScheduler("* * * * *", NewDirectTrigger(&fakeTicker{err: errors.New("boom")}), 0, logger.Nop())
	require.NoError(t, err)
	assert.NotPanics(t, s.fire)
}
