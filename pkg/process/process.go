package process

import (
	"context"
	"errors"

	"github.com/taskflow-ai/taskflow/internal/domain"
	"github.com/taskflow-ai/taskflow/pkg/dataproc"
	"github.com/taskflow-ai/taskflow/pkg/email"
	"github.com/taskflow-ai/taskflow/pkg/export"
	"github.com/taskflow-ai/taskflow/pkg/healthprobe"
	"github.com/taskflow-ai/taskflow/pkg/imaging"
	"github.com/taskflow-ai/taskflow/pkg/report"
)

type Process interface {
	Execute(ctx context.Context, task *domain.Task) error
}

func NewProcess(taskType domain.TaskType) (Process, error) {
	switch taskType {
	case domain.EmailNotification:
		return email.NewSendEmailTask(), nil
	case domain.ReportGeneration:
		return report.NewGenerateReportTask(), nil
	case domain.DataProcessing:
		return dataproc.NewProcessDataTask(), nil
	case domain.ImageProcessing:
		return imaging.NewProcessImageTask(), nil
	case domain.DataExport:
		return export.NewExportDataTask(), nil
	case domain.HealthCheck:
		return healthprobe.NewHealthCheckTask(), nil
	default:
		return nil, errors.New("unrecognized task type")
	}
}

// Handle resolves and runs the handler for one task; it is the HandlerFunc
// the consumer pool is wired with.
func Handle(ctx context.Context, task *domain.Task) error {
	p, err := NewProcess(task.Type)
	if err != nil {
		return err
	}
	return p.Execute(ctx, task)
}
