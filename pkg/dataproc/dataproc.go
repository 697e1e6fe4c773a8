package dataproc

import (
	"context"
	"log/slog"
	"time"

	"github.com/taskflow-ai/taskflow/internal/domain"
)

type ProcessDataTask struct {
	ChunkDelay time.Duration
	Chunks     int
}

func NewProcessDataTask() ProcessDataTask {
	return ProcessDataTask{ChunkDelay: 200 * time.Millisecond, Chunks: 10}
}

// Execute works through the dataset chunk by chunk, checking for shutdown
// between chunks so long runs stay cancelable.
func (p ProcessDataTask) Execute(ctx context.Context, task *domain.Task) error {
	params, err := domain.DataProcessingParamsFrom(task.Parameters)
	if err != nil {
		return err
	}
	slog.Info("Processing dataset", "task_id", task.ID, "dataset", params.Dataset, "operation", params.Operation)

	for chunk := 0; chunk < p.Chunks; chunk++ {
		select {
		case <-time.After(p.ChunkDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	slog.Info("Dataset has been processed", "task_id", task.ID, "dataset", params.Dataset)
	return nil
}
