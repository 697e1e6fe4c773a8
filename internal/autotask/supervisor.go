package autotask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/taskflow-ai/taskflow/internal/domain"
)

// Sender publishes one task; satisfied by the producer's Publisher.
type Sender interface {
	Publish(ctx context.Context, task *domain.Task) error
}

// Status is the supervisor's externally visible state.
type Status struct {
	Running   bool      `json:"running"`
	Schedule  string    `json:"schedule,omitempty"`
	Sent      int64     `json:"sent"`
	Failed    int64     `json:"failed"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Supervisor owns the auto-send generator: a running flag, a cancellation
// handle and a completion channel, all behind one value the HTTP surface
// holds a handle to. No package-level state.
type Supervisor struct {
	sender Sender

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	cron      *cron.Cron
	schedule  string
	sent      int64
	failed    int64
	startedAt time.Time
}

func NewSupervisor(sender Sender) *Supervisor {
	return &Supervisor{sender: sender}
}

// Start launches the generator with the given cron schedule (seconds field
// supported, e.g. "@every 10s"). Starting twice is an error.
func (s *Supervisor) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("auto-send is already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(normalizeSchedule(schedule), func() {
		s.sendOne(ctx)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("invalid auto-send schedule %q: %w", schedule, err)
	}

	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.cron = c
	s.schedule = schedule
	s.startedAt = time.Now().UTC()
	c.Start()

	go func(done chan struct{}, c *cron.Cron) {
		<-ctx.Done()
		stopCtx := c.Stop()
		<-stopCtx.Done()
		close(done)
	}(s.done, c)

	slog.Info("Auto-send generator has been started", "schedule", schedule)
	return nil
}

// Stop cancels the generator and waits for the completion channel.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return errors.New("auto-send is not running")
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.cancel = nil
	s.cron = nil
	s.mu.Unlock()

	cancel()
	<-done
	slog.Info("Auto-send generator has been stopped")
	return nil
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:   s.running,
		Schedule:  s.schedule,
		Sent:      s.sent,
		Failed:    s.failed,
		StartedAt: s.startedAt,
	}
}

func (s *Supervisor) sendOne(ctx context.Context) {
	task := generateTask()
	err := s.sender.Publish(ctx, task)

	s.mu.Lock()
	if err != nil {
		s.failed++
	} else {
		s.sent++
	}
	s.mu.Unlock()

	if err != nil {
		slog.Error("Error occurred while auto-sending generated task", "task_id", task.ID, "error", err.Error())
		return
	}
	slog.Info("Auto-send task has been published", "task_id", task.ID, "task_type", task.Type)
}

// generateTask produces one demo task, rotating types and priorities so the
// whole destination catalog gets traffic.
func generateTask() *domain.Task {
	id := uuid.NewString()
	types := domain.AllTaskTypes()
	taskType := types[int(id[0])%len(types)]

	task := &domain.Task{
		ID:             id,
		Type:           taskType,
		Title:          fmt.Sprintf("auto-generated %s", taskType),
		ManualPriority: int(id[1]) % 11,
		MaxRetries:     3,
		CreatedAt:      time.Now().UTC(),
		Features: &domain.Features{
			Source: "auto-send",
		},
	}
	switch taskType {
	case domain.EmailNotification:
		task.Parameters = map[string]any{"to": "demo@example.com", "subject": "auto task", "body": "generated"}
	case domain.ReportGeneration:
		task.Parameters = map[string]any{"report_type": "daily"}
	case domain.DataProcessing:
		task.Parameters = map[string]any{"dataset": "demo", "operation": "aggregate"}
	case domain.ImageProcessing:
		task.Parameters = map[string]any{"source_url": "https://example.com/demo.png", "width": 640, "height": 480}
	case domain.DataExport:
		task.Parameters = map[string]any{"target": "s3://demo-bucket/export"}
	}
	return task
}

// normalizeSchedule lets operators pass plain five-field cron expressions
// even though the scheduler runs with a seconds field.
func normalizeSchedule(schedule string) string {
	if len(schedule) > 0 && schedule[0] == '@' {
		return schedule
	}
	fields := 1
	for _, r := range schedule {
		if r == ' ' {
			fields++
		}
	}
	if fields == 5 {
		return "0 " + schedule
	}
	return schedule
}
