package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/taskflow-ai/taskflow/internal/domain"
)

type GenerateReportTask struct {
	RenderDelay time.Duration
}

func NewGenerateReportTask() GenerateReportTask {
	return GenerateReportTask{RenderDelay: time.Second}
}

func (r GenerateReportTask) Execute(ctx context.Context, task *domain.Task) error {
	params, err := domain.ReportParamsFrom(task.Parameters)
	if err != nil {
		return err
	}
	slog.Info("Generating report", "task_id", task.ID, "report_type", params.ReportType, "format", params.Format)

	select {
	case <-time.After(r.RenderDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	slog.Info("Report has been generated", "task_id", task.ID, "report_type", params.ReportType)
	return nil
}
