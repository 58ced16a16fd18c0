package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"nutrilens-be/internal/pkg/logger"
)

const (
	// DefaultTaskTimeout bounds how long Send waits for a worker response.
	DefaultTaskTimeout = 30 * time.Second

	inboxSize = 16
)

// workerRecord is one live background execution context. Liveness is implied
// by presence in the active map; there is no separate health field.
type workerRecord struct {
	taskType string
	inbox    chan Task
	quit     chan struct{}
	done     chan struct{}
}

// Pool owns the set of background workers, one per task domain, and the
// pending-task correlation map. A worker processes one task at a time in the
// order received.
//
// The pool is designed to run degraded: initialization failures and missing
// workers are reported to the caller, who is expected to fall back to
// in-process execution.
type Pool struct {
	mu      sync.Mutex
	targets map[string]TargetFunc
	workers map[string]*workerRecord
	channel *Channel
	timeout time.Duration
	logger  logger.ILogger
}

func NewPool(timeout time.Duration, log logger.ILogger) *Pool {
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &Pool{
		targets: make(map[string]TargetFunc),
		workers: make(map[string]*workerRecord),
		channel: NewChannel(),
		timeout: timeout,
		logger:  log,
	}
}

// RegisterType records the execution target for a task domain. It starts
// nothing. Re-registering a type overwrites the previous mapping.
func (p *Pool) RegisterType(taskType string, target TargetFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targets[taskType] = target
}

// Initialize terminates any existing worker of the given type, then starts a
// fresh one bound to the registered target. Failure is non-fatal to the
// caller: the system runs with zero workers.
func (p *Pool) Initialize(taskType string) error {
	p.mu.Lock()
	target, ok := p.targets[taskType]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("no target registered for task type %q", taskType)
	}
	if old, exists := p.workers[taskType]; exists {
		p.stopLocked(taskType, old)
	}

	w := &workerRecord{
		taskType: taskType,
		inbox:    make(chan Task, inboxSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	p.workers[taskType] = w
	p.mu.Unlock()

	go p.run(w, target)

	p.logger.Info("WorkerPool", "Worker initialized", map[string]interface{}{"type": taskType})
	return nil
}

// run is the worker loop. A panic in the target is treated as a worker
// crash: every pending task owned by this worker is force-failed and the
// record is dropped.
func (p *Pool) run(w *workerRecord, target TargetFunc) {
	defer close(w.done)
	for {
		select {
		case <-w.quit:
			// Quit without draining: remaining pending entries were
			// already failed by Terminate.
			p.logger.Info("WorkerPool", "Worker stopped", map[string]interface{}{"type": w.taskType})
			return
		case task := <-w.inbox:
			crashed := p.execute(w, target, task)
			if crashed {
				return
			}
		}
	}
}

// execute runs a single task and routes its response. Returns true when the
// worker crashed and must not process further tasks.
func (p *Pool) execute(w *workerRecord, target TargetFunc, task Task) (crashed bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("WorkerPool", "Worker crashed", map[string]interface{}{
				"type":  w.taskType,
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
			p.failWorker(w, fmt.Sprintf("worker %s crashed: %v", w.taskType, r))
			crashed = true
		}
	}()

	result, err := target(task)
	resp := Response{TaskID: task.ID, OK: err == nil, Result: result}
	if err != nil {
		resp.Err = err.Error()
	}
	p.finish(resp)
	return false
}

// finish resolves the pending entry for a completed task. Late responses for
// ids that already timed out are dropped inside Resolve.
func (p *Pool) finish(resp Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channel.Resolve(resp.TaskID, resp)
}

// failWorker force-fails every pending entry attributed to the crashed
// worker by its id prefix and removes the record. Outstanding callers fail
// immediately instead of waiting out their timeouts.
func (p *Pool) failWorker(w *workerRecord, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.workers[w.taskType] == w {
		delete(p.workers, w.taskType)
	}
	p.failPendingLocked(w.taskType, reason)
}

func (p *Pool) failPendingLocked(taskType, reason string) {
	for _, id := range p.channel.IDsWithPrefix(taskType + "_") {
		p.channel.Resolve(id, Response{TaskID: id, OK: false, Err: reason})
	}
}

// Ready reports whether a live worker exists for the task type.
func (p *Pool) Ready(taskType string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.workers[taskType]
	return ok
}

// Send posts a task to the worker for its type and blocks until the matching
// response arrives, the task timeout elapses, or ctx is cancelled, whichever
// comes first. Exactly one of those outcomes wins; the losers become no-ops.
func (p *Pool) Send(ctx context.Context, task Task) (map[string]interface{}, error) {
	p.mu.Lock()
	w, ok := p.workers[task.Type]
	if !ok {
		p.mu.Unlock()
		return nil, ErrNoWorker
	}

	resCh := make(chan Response, 1)
	p.channel.Register(task.ID, func(resp Response) {
		resCh <- resp
	})
	timer := time.AfterFunc(p.timeout, func() {
		p.mu.Lock()
		expired := p.channel.Remove(task.ID)
		p.mu.Unlock()
		if expired {
			resCh <- Response{TaskID: task.ID, OK: false, Err: ErrTimeout.Error()}
		}
	})
	p.channel.AttachTimer(task.ID, timer)

	select {
	case w.inbox <- task:
	default:
		p.channel.Remove(task.ID)
		p.mu.Unlock()
		return nil, ErrInboxFull
	}
	p.mu.Unlock()

	select {
	case resp := <-resCh:
		if !resp.OK {
			if resp.Err == ErrTimeout.Error() {
				return nil, fmt.Errorf("task %s: %w", task.ID, ErrTimeout)
			}
			return nil, fmt.Errorf("task %s failed: %s", task.ID, resp.Err)
		}
		return resp.Result, nil
	case <-ctx.Done():
		p.mu.Lock()
		p.channel.Remove(task.ID)
		p.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Terminate stops the worker for the given type and immediately force-fails
// its pending tasks rather than letting them run into their timeouts.
func (p *Pool) Terminate(taskType string) {
	p.mu.Lock()
	w, ok := p.workers[taskType]
	if ok {
		p.stopLocked(taskType, w)
	}
	p.mu.Unlock()
}

// TerminateAll stops every worker.
func (p *Pool) TerminateAll() {
	p.mu.Lock()
	for taskType, w := range p.workers {
		p.stopLocked(taskType, w)
	}
	p.mu.Unlock()
}

// stopLocked removes the record, fails its pending entries and signals the
// goroutine to exit. Callers hold p.mu.
func (p *Pool) stopLocked(taskType string, w *workerRecord) {
	delete(p.workers, taskType)
	p.failPendingLocked(taskType, ErrWorkerFailed.Error())
	close(w.quit)
}

// PendingCount reports the number of in-flight tasks, for diagnostics.
func (p *Pool) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.Len()
}
