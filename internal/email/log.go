package email

import (
	"context"

	"github.com/jwalitptl/quiet-hours/internal/model"
	"github.com/jwalitptl/quiet-hours/pkg/logger"
)

// LogSender only logs reminders. Used when no SMTP host is configured.
type LogSender struct {
	log *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, r model.Reminder) error {
	s.log.Info("reminder email (not sent, smtp disabled)",
		"to", r.Email,
		"subject", Subject(r),
	)
	return nil
}
