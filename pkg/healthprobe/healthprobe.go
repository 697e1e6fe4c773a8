package healthprobe

import (
	"context"
	"log/slog"

	"github.com/taskflow-ai/taskflow/internal/domain"
)

type HealthCheckTask struct{}

func NewHealthCheckTask() HealthCheckTask {
	return HealthCheckTask{}
}

func (h HealthCheckTask) Execute(ctx context.Context, task *domain.Task) error {
	params, err := domain.HealthCheckParamsFrom(task.Parameters)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	slog.Info("Health probe completed", "task_id", task.ID, "target", params.Target)
	return nil
}
