package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Well-known task domains. Each domain maps to at most one live worker.
const (
	TypeImage = "image"
	TypeAudio = "audio"
)

var (
	// ErrNoWorker is returned by Send when no worker is initialized for the
	// requested task type.
	ErrNoWorker = errors.New("no worker initialized for task type")

	// ErrTimeout is returned when a worker did not respond within the
	// configured task timeout.
	ErrTimeout = errors.New("task timed out")

	// ErrWorkerFailed is returned for tasks that were in flight when their
	// worker crashed or was terminated.
	ErrWorkerFailed = errors.New("worker terminated before responding")

	// ErrInboxFull is returned when the worker exists but its inbox is
	// saturated. The caller is expected to fall back, not retry.
	ErrInboxFull = errors.New("worker inbox is full")
)

// Task is a single unit of work posted to a background worker. It is built
// immediately before send and never mutated afterwards.
type Task struct {
	Type    string
	ID      string
	Payload map[string]interface{}
}

// Response carries the outcome of one task back to its sender. Exactly one
// response is produced per task.
type Response struct {
	TaskID string
	OK     bool
	Result map[string]interface{}
	Err    string
}

// TargetFunc is the execution target registered for a task domain. It runs
// inside the worker goroutine, one task at a time.
type TargetFunc func(task Task) (map[string]interface{}, error)

// GenerateTaskID builds an identifier that is unique with high probability
// among in-flight tasks. The type prefix is load-bearing: crash handling
// attributes pending tasks to their owning worker by this prefix.
func GenerateTaskID(taskType string) string {
	return fmt.Sprintf("%s_%d_%s", taskType, time.Now().UnixNano(), uuid.NewString()[:8])
}
