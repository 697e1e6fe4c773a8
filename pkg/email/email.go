package email

import (
	"context"
	"log/slog"
	"time"

	"github.com/taskflow-ai/taskflow/internal/domain"
)

type SendEmailTask struct {
	// SendDelay stands in for the SMTP round trip; tests shrink it.
	SendDelay time.Duration
}

func NewSendEmailTask() SendEmailTask {
	return SendEmailTask{SendDelay: 300 * time.Millisecond}
}

func (e SendEmailTask) Execute(ctx context.Context, task *domain.Task) error {
	params, err := domain.EmailParamsFrom(task.Parameters)
	if err != nil {
		return err
	}
	slog.Info("Sending email", "task_id", task.ID, "to", params.To, "subject", params.Subject)

	select {
	case <-time.After(e.SendDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	slog.Info("Email has been sent", "task_id", task.ID, "to", params.To)
	return nil
}
