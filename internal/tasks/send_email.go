package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/schedq/schedq/internal/models"
)

// SendEmailTask delivers one email. A transport hiccup requests a requeue
// with backoff; a malformed request fails outright.
type SendEmailTask struct {
	models.TaskMeta
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask creates an email task ready to submit.
func NewSendEmailTask(to, subject, body string) *SendEmailTask {
	return &SendEmailTask{
		TaskMeta: models.NewTaskMeta(fmt.Sprintf("Send email to %s", to)),
		To:       to,
		Subject:  subject,
		Body:     body,
	}
}

// Run implements models.Runnable.
func (t *SendEmailTask) Run(ctx context.Context, env models.Environment) (bool, error) {
	if t.To == "" {
		return false, fmt.Errorf("missing required field: to")
	}
	if t.Subject == "" {
		return false, fmt.Errorf("missing required field: subject")
	}

	if t.Meta().AbortRequested() {
		return false, fmt.Errorf("aborted")
	}
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	// TODO: Integrate with actual email service (SendGrid, AWS SES, etc.)
	slog.Info("Sending email",
		"to", t.To,
		"subject", t.Subject,
		"body_length", len(t.Body),
	)

	if _, err := env.StoreTaskEvent(ctx, t, NewNoteEvent(fmt.Sprintf("email sent to %s", t.To))); err != nil {
		return false, err
	}
	return true, nil
}
