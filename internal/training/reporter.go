package training

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/taskflow-ai/taskflow/internal/domain"
)

// Reporter ships observed outcomes to the prediction service's training
// endpoint. Delivery is best-effort: the queue is bounded, send failures are
// logged and dropped, and the consuming data path never blocks on it.
type Reporter struct {
	baseURL    string
	httpClient *http.Client
	queue      chan domain.Observation
	dropped    atomic.Int64
}

func NewReporter(baseURL string, timeout time.Duration, queueSize int) *Reporter {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Reporter{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		queue:      make(chan domain.Observation, queueSize),
	}
}

// Report enqueues one observation without blocking. When the queue is full
// the oldest record is dropped to make room; training data is advisory.
func (r *Reporter) Report(obs domain.Observation) {
	for {
		select {
		case r.queue <- obs:
			return
		default:
		}
		select {
		case <-r.queue:
			slog.Warn("Training queue is full, dropping the oldest observation", "dropped_total", r.dropped.Add(1))
		default:
		}
	}
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (r *Reporter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return
		case obs := <-r.queue:
			r.send(ctx, obs)
		}
	}
}

func (r *Reporter) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case obs := <-r.queue:
			r.send(ctx, obs)
		default:
			return
		}
	}
}

func (r *Reporter) send(ctx context.Context, obs domain.Observation) {
	operation := func() error {
		return r.post(ctx, obs)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), 2), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		slog.Warn("Error occurred while reporting training observation, dropping it", "task_id", obs.TaskID, "error", err.Error())
		return
	}
	slog.Debug("Training observation has been reported", "task_id", obs.TaskID, "was_successful", obs.WasSuccessful)
}

func (r *Reporter) post(ctx context.Context, obs domain.Observation) error {
	payload, err := json.Marshal(obs)
	if err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/training/record", bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("training record rejected with status %d", resp.StatusCode)
	}
	return nil
}
