package imaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/taskflow-ai/taskflow/internal/domain"
)

type ProcessImageTask struct {
	TransformDelay time.Duration
}

func NewProcessImageTask() ProcessImageTask {
	return ProcessImageTask{TransformDelay: 500 * time.Millisecond}
}

func (p ProcessImageTask) Execute(ctx context.Context, task *domain.Task) error {
	params, err := domain.ImageParamsFrom(task.Parameters)
	if err != nil {
		return err
	}
	slog.Info("Transforming image", "task_id", task.ID, "source_url", params.SourceURL, "width", params.Width, "height", params.Height)

	select {
	case <-time.After(p.TransformDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	slog.Info("Image has been transformed", "task_id", task.ID)
	return nil
}
