package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/jwalitptl/quiet-hours/internal/model"
)

// Sender delivers one reminder. A nil error means the transport accepted it.
type Sender interface {
	Send(ctx context.Context, reminder model.Reminder) error
}

var reminderTemplate = template.Must(template.New("reminder").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <p>Hi {{.Name}},</p>
  <p>Your quiet hours block <strong>{{.BlockTitle}}</strong> starts at {{.Start}}.</p>
  <p>Time to wrap up and silence distractions.</p>
</body>
</html>
`))

// Subject returns the mail subject for a reminder.
func Subject(r model.Reminder) string {
	return "Quiet Hours Reminder: " + r.BlockTitle
}

// Render returns the HTML body for a reminder.
func Render(r model.Reminder) (string, error) {
	var buf bytes.Buffer
	err := reminderTemplate.Execute(&buf, struct {
		Name       string
		BlockTitle string
		Start      string
	}{
		Name:       r.Name,
		BlockTitle: r.BlockTitle,
		Start:      r.StartTime.UTC().Format("Mon, 02 Jan 2006 15:04 MST"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render reminder: %w", err)
	}
	return buf.String(), nil
}
