package export

import (
	"context"
	"log/slog"
	"time"

	"github.com/taskflow-ai/taskflow/internal/domain"
)

type ExportDataTask struct {
	UploadDelay time.Duration
}

func NewExportDataTask() ExportDataTask {
	return ExportDataTask{UploadDelay: 400 * time.Millisecond}
}

func (e ExportDataTask) Execute(ctx context.Context, task *domain.Task) error {
	params, err := domain.ExportParamsFrom(task.Parameters)
	if err != nil {
		return err
	}
	slog.Info("Exporting data", "task_id", task.ID, "target", params.Target, "format", params.Format)

	select {
	case <-time.After(e.UploadDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	slog.Info("Export has been written", "task_id", task.ID, "target", params.Target)
	return nil
}
