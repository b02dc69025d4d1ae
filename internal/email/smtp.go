package email

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/quiet-hours/internal/config"
	"github.com/jwalitptl/quiet-hours/internal/model"
	apperrors "github.com/jwalitptl/quiet-hours/pkg/errors"
)

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPSender sends reminders through an SMTP relay.
type SMTPSender struct {
	dialer  dialer
	from    string
	limiter *rate.Limiter
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return newSMTPSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From, cfg.SendsPerSecond)
}

func newSMTPSender(d dialer, from string, perSecond float64) *SMTPSender {
	s := &SMTPSender{dialer: d, from: from}
	if perSecond > 0 {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return s
}

func (s *SMTPSender) Send(ctx context.Context, r model.Reminder) error {
	if r.Email == "" {
		return apperrors.NewDelivery(errors.New("empty recipient address"))
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return apperrors.NewDelivery(err)
		}
	}

	body, err := Render(r)
	if err != nil {
		return apperrors.NewDelivery(err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetAddressHeader("To", r.Email, r.Name)
	m.SetHeader("Subject", Subject(r))
	m.SetBody("text/html", body)

	// gomail has no context support and no write deadline beyond its fixed
	// 10s dial timeout. A send abandoned on ctx expiry keeps running and may
	// still deliver; the caller fails the job and a later tick retries it, so
	// a timed-out reminder is delivered at least once, possibly twice.
	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return apperrors.NewDelivery(err)
		}
		return nil
	case <-ctx.Done():
		return apperrors.NewDelivery(ctx.Err())
	}
}
