package autopilot

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is a FIFO target queue fed by the operator control surface.
// It satisfies Queue; sites with a scheduler database would substitute
// their own implementation.
type MemoryQueue struct {
	mu      sync.Mutex
	targets []*Target

	// staged records the last preload request: the queue head is
	// considered staged for an epoch that far in the future.
	stagedDelay time.Duration
	stagedAt    time.Time
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Push appends a target.
func (q *MemoryQueue) Push(target *Target) {
	q.mu.Lock()
	q.targets = append(q.targets, target)
	q.mu.Unlock()
}

// Len returns the number of queued targets.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.targets)
}

// Next pops the head of the queue, or returns nil when empty.
func (q *MemoryQueue) Next(context.Context) (*Target, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.targets) == 0 {
		return nil, nil
	}
	target := q.targets[0]
	q.targets = q.targets[1:]
	q.stagedDelay = 0
	q.stagedAt = time.Time{}
	return target, nil
}

// Preload records the staging request. The in-memory queue has nothing to
// physically stage; the epoch delay is kept for Staged so operators can
// see the decision.
func (q *MemoryQueue) Preload(_ context.Context, epochDelay time.Duration) error {
	q.mu.Lock()
	q.stagedDelay = epochDelay
	q.stagedAt = time.Now()
	q.mu.Unlock()
	return nil
}

// Staged returns the last preload request, if any.
func (q *MemoryQueue) Staged() (delay time.Duration, at time.Time, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stagedDelay, q.stagedAt, !q.stagedAt.IsZero()
}
