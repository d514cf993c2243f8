package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"nic-search/internal/retry"
)

// TaskType enumerates supported task categories.
type TaskType string

// TaskTypeReindex asks every search replica to rebuild its catalog.
const TaskTypeReindex TaskType = "reindex"

// Task represents a unit of work passed between replicas.
type Task struct {
	ID   uuid.UUID
	Type TaskType
}

type Handler func(context.Context, Task) error

// Queue exposes a minimal contract to enqueue and consume tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	// Subscribe consumes tasks with fan-out: each task reaches every
	// subscriber. It blocks until ctx is done.
	Subscribe(ctx context.Context, taskType TaskType, handler Handler) error
}

// EnqueueWithRetry attempts to enqueue with retries and exponential backoff.
func EnqueueWithRetry(ctx context.Context, q Queue, task Task, attempts int, base time.Duration) error {
	return retry.Do(ctx, attempts, base, func(ctx context.Context) error {
		return q.Enqueue(ctx, task)
	})
}
