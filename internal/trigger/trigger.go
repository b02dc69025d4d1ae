// Package trigger drives dispatcher ticks from outside the API process,
// either over HTTP or directly against the store.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	cronHandler "github.com/jwalitptl/quiet-hours/internal/handler/cron"
	"github.com/jwalitptl/quiet-hours/internal/model"
	"github.com/jwalitptl/quiet-hours/pkg/logger"
)

// Trigger runs one dispatch pass.
type Trigger interface {
	Fire(ctx context.Context) (*cronHandler.ProcessResponse, error)
}

// HTTPTrigger calls the API's process-notifications endpoint.
type HTTPTrigger struct {
	url    string
	secret string
	client *http.Client
}

func NewHTTPTrigger(url, secret string, timeout time.Duration) *HTTPTrigger {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPTrigger{url: url, secret: secret, client: &http.Client{Timeout: timeout}}
}

func (t *HTTPTrigger) Fire(ctx context.Context) (*cronHandler.ProcessResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trigger returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out cronHandler.ProcessResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// Ticker is satisfied by *worker.Dispatcher.
type Ticker interface {
	RunTick(ctx context.Context, now time.Time) ([]model.Outcome, error)
}

// DirectTrigger runs the dispatcher in-process.
type DirectTrigger struct {
	ticker Ticker
	now    func() time.Time
}

func NewDirectTrigger(ticker Ticker) *DirectTrigger {
	return &DirectTrigger{ticker: ticker, now: time.Now}
}

func (t *DirectTrigger) Fire(ctx context.Context) (*cronHandler.ProcessResponse, error) {
	outcomes, err := t.ticker.RunTick(ctx, t.now().UTC())
	if err != nil {
		return nil, err
	}
	return &cronHandler.ProcessResponse{
		Message:   "Notifications processed",
		Processed: len(outcomes),
		Results:   outcomes,
	}, nil
}

// Summarize counts results by status.
func Summarize(resp *cronHandler.ProcessResponse) map[model.OutcomeStatus]int {
	counts := make(map[model.OutcomeStatus]int)
	for _, r := range resp.Results {
		counts[r.Status]++
	}
	return counts
}

// Scheduler fires a Trigger on a cron schedule. A tick still running when
// the next one is due is skipped, not queued.
type Scheduler struct {
	trigger Trigger
	logger  *logger.Logger
	timeout time.Duration
	c       *cron.Cron
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewScheduler validates expr and prepares the cron runner. timeout bounds each tick.
func NewScheduler(expr string, t Trigger, timeout time.Duration, log *logger.Logger) (*Scheduler, error) {
	s := &Scheduler{
		trigger: t,
		logger:  log,
		timeout: timeout,
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
	}
	if _, err := s.c.AddFunc(expr, s.fire); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return s, nil
}

func (s *Scheduler) fire() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	resp, err := s.trigger.Fire(ctx)
	if err != nil {
		s.logger.Error(err, "Trigger failed")
		return
	}

	counts := Summarize(resp)
	s.logger.Info("Tick complete",
		"processed", resp.Processed,
		"sent", counts[model.OutcomeSent],
		"failed", counts[model.OutcomeFailed],
		"skipped", counts[model.OutcomeSkipped],
		"errors", counts[model.OutcomeError],
		"duration_ms", time.Since(started).Milliseconds(),
	)
}

// Run blocks until ctx is done, then waits for an in-flight tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.c.Start()
	<-ctx.Done()
	<-s.c.Stop().Done()
}
