package autopilot

import (
	"context"
	"testing"
	"time"
)

func TestMemoryQueue_FIFO(t *testing.T) {
	q := NewMemoryQueue()
	q.Push(&Target{FieldID: "f1"})
	q.Push(&Target{FieldID: "f2"})

	if q.Len() != 2 {
		t.Errorf("Len() = %d, want 2", q.Len())
	}

	first, err := q.Next(context.Background())
	if err != nil || first == nil || first.FieldID != "f1" {
		t.Fatalf("Next() = %v, %v", first, err)
	}
	second, _ := q.Next(context.Background())
	if second.FieldID != "f2" {
		t.Errorf("second target = %v", second)
	}
	empty, err := q.Next(context.Background())
	if err != nil || empty != nil {
		t.Errorf("Next() on empty queue = %v, %v", empty, err)
	}
}

func TestMemoryQueue_PreloadStaging(t *testing.T) {
	q := NewMemoryQueue()
	q.Push(&Target{FieldID: "f1"})

	if _, _, ok := q.Staged(); ok {
		t.Error("Staged() ok before any preload")
	}
	if err := q.Preload(context.Background(), 163*time.Second); err != nil {
		t.Fatalf("Preload() error = %v", err)
	}
	delay, _, ok := q.Staged()
	if !ok || delay != 163*time.Second {
		t.Errorf("Staged() = %v, %v", delay, ok)
	}

	// Taking the next target clears the staging record.
	q.Next(context.Background()) //nolint:errcheck
	if _, _, ok := q.Staged(); ok {
		t.Error("Staged() survives Next()")
	}
}
