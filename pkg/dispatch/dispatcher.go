// Package dispatch routes logical operations either to a background worker
// or to an in-process fallback, trading a little latency for availability:
// a user-facing feature degrades to sequential execution instead of failing
// when the parallel subsystem is unhealthy.
package dispatch

import (
	"context"

	"nutrilens-be/internal/pkg/logger"
	"nutrilens-be/pkg/worker"
)

// FallbackFunc executes the logical operation in-process, without any
// task-id machinery.
type FallbackFunc func(ctx context.Context) (map[string]interface{}, error)

// Job is one logical operation to route. Payload is what the worker target
// receives; Fallback performs the equivalent work synchronously.
type Job struct {
	Type     string
	Payload  map[string]interface{}
	Fallback FallbackFunc
}

// Sender is the slice of the worker pool the dispatcher needs. Satisfied by
// *worker.Pool; narrowed so tests can spy on it.
type Sender interface {
	Ready(taskType string) bool
	Send(ctx context.Context, task worker.Task) (map[string]interface{}, error)
}

type Dispatcher struct {
	pool   Sender
	logger logger.ILogger
}

func NewDispatcher(pool Sender, log logger.ILogger) *Dispatcher {
	return &Dispatcher{pool: pool, logger: log}
}

// Dispatch runs the job on its worker when one is available, falling back to
// in-process execution when the worker is missing or the send fails for any
// reason (timeout, crash, malformed response). The fallback runs at most
// once. When both the parallel attempt and the fallback fail, the FALLBACK
// error is surfaced: it represents the final, authoritative attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) (map[string]interface{}, error) {
	if d.pool == nil || !d.pool.Ready(job.Type) {
		return job.Fallback(ctx)
	}

	task := worker.Task{
		Type:    job.Type,
		ID:      worker.GenerateTaskID(job.Type),
		Payload: job.Payload,
	}

	result, err := d.pool.Send(ctx, task)
	if err == nil {
		return result, nil
	}

	d.logger.Warn("Dispatcher", "Parallel dispatch failed, running in-process fallback", map[string]interface{}{
		"type":    job.Type,
		"task_id": task.ID,
		"error":   err.Error(),
	})

	return job.Fallback(ctx)
}
