package predictionsvc

import (
	"sync"

	"github.com/taskflow-ai/taskflow/internal/domain"
)

// Buffer is the in-memory, mutex-guarded training record store. When full
// it evicts the oldest record; the service never persists anything.
type Buffer struct {
	mu      sync.Mutex
	records []domain.Observation
	cap     int
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Buffer{cap: capacity}
}

func (b *Buffer) Append(obs domain.Observation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, obs)
	if len(b.records) > b.cap {
		b.records = b.records[len(b.records)-b.cap:]
	}
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Snapshot copies the buffer for a retrain pass so training never holds the
// append lock.
func (b *Buffer) Snapshot() []domain.Observation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Observation(nil), b.records...)
}
