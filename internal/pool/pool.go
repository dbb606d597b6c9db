// Package pool is the worker-pool manager: it queues interpretation tasks,
// dispatches them to idle external worker processes, scales the pool between
// configured bounds, and turns every process failure into a resolved task
// outcome.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/mattjoyce/interpd/internal/events"
	"github.com/mattjoyce/interpd/internal/history"
	"github.com/mattjoyce/interpd/internal/log"
)

// availabilityProbeTimeout bounds the one-shot runtime check.
const availabilityProbeTimeout = 10 * time.Second

// Config carries the pool's runtime contract and bounds.
type Config struct {
	// Runtime is the external interpreter executable (resolved via PATH).
	Runtime string
	// Script is the server script passed as the runtime's first argument.
	Script string

	MinWorkers   int
	MaxWorkers   int
	TaskTimeout  time.Duration
	IdleTTL      time.Duration
	RespawnDelay time.Duration
}

// Option configures a Pool.
type Option func(*Pool)

// WithRecorder wires an outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pool) { p.recorder = r }
}

// WithHub wires a lifecycle event hub.
func WithHub(h *events.Hub) Option {
	return func(p *Pool) { p.hub = h }
}

// Pool owns the FIFO task queue and the ordered worker list. One mutex
// guards every entry point (submission, worker-free signals, stream chunks,
// process exits, timer firings) so all state transitions are atomic with
// respect to each other.
type Pool struct {
	mu sync.Mutex

	cfg    Config
	logger *slog.Logger

	workers      []*Worker // creation order, also dispatch-scan order
	queue        []*Task   // FIFO, head at index 0, deliberately unbounded
	nextWorkerID int
	closed       bool

	recorder Recorder
	hub      *events.Hub
}

// New validates cfg, pre-spawns MinWorkers workers, and returns the pool.
// A worker whose initial spawn fails is parked on the respawn path rather
// than failing construction.
func New(cfg Config, opts ...Option) (*Pool, error) {
	if cfg.Runtime == "" {
		return nil, fmt.Errorf("runtime command is empty")
	}
	if cfg.Script == "" {
		return nil, fmt.Errorf("script path is empty")
	}
	if cfg.MinWorkers < 1 {
		return nil, fmt.Errorf("minWorkers must be at least 1")
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		return nil, fmt.Errorf("maxWorkers (%d) must be >= minWorkers (%d)", cfg.MaxWorkers, cfg.MinWorkers)
	}
	if cfg.TaskTimeout <= 0 || cfg.IdleTTL <= 0 || cfg.RespawnDelay <= 0 {
		return nil, fmt.Errorf("timeouts must be positive")
	}

	p := &Pool{
		cfg:    cfg,
		logger: log.WithComponent("pool"),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for range cfg.MinWorkers {
		p.addWorkerLocked()
	}
	p.logger.Info("pool started",
		"min_workers", cfg.MinWorkers, "max_workers", cfg.MaxWorkers,
		"task_timeout", cfg.TaskTimeout, "idle_ttl", cfg.IdleTTL)
	return p, nil
}

// Submit enqueues a task and attempts immediate dispatch. It never fails
// synchronously: every path, including submission to a closed pool, reports
// through the returned task's outcome handle.
func (p *Pool) Submit(payload json.RawMessage) *Task {
	t := newTask(payload)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.finishTaskLocked(t, Outcome{Success: false, Err: "pool is shut down"})
		return t
	}

	p.queue = append(p.queue, t)
	p.publish(events.TypeTaskSubmitted, map[string]any{"rid": t.Rid, "queue_depth": len(p.queue)})
	p.pumpLocked()
	return t
}

// SubmitWait submits and blocks until the outcome arrives or ctx expires.
// On ctx expiry the task itself stays in flight; its handle resolves later
// into the buffered channel and is dropped.
func (p *Pool) SubmitWait(ctx context.Context, payload json.RawMessage) (Outcome, error) {
	t := p.Submit(payload)
	select {
	case o := <-t.Outcome():
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// onWorkerFreeLocked runs after any worker becomes idle: dispatch the next
// queued tasks, then arm idle TTL timers on excess idle workers.
func (p *Pool) onWorkerFreeLocked() {
	p.pumpLocked()

	excess := len(p.workers) - p.cfg.MinWorkers
	if excess <= 0 {
		return
	}
	// Newest workers are the scale-up overflow; arm those first.
	for i := len(p.workers) - 1; i >= 0 && excess > 0; i-- {
		w := p.workers[i]
		if w.state == StateIdle {
			w.scheduleScaleDownLocked(p.cfg.IdleTTL)
			excess--
		}
	}
}

// pumpLocked is the dispatch pass: scan workers in creation order handing
// out queued tasks. If a backlog remains, nobody is idle, and the pool is
// under its bound, create exactly one new worker. At most one per pump
// throttles worker creation under a heavy backlog.
func (p *Pool) pumpLocked() {
	for _, w := range p.workers {
		for w.state == StateIdle && len(p.queue) > 0 {
			w.assignLocked(p.popLocked())
		}
		if len(p.queue) == 0 {
			return
		}
	}

	if len(p.workers) >= p.cfg.MaxWorkers {
		return
	}
	for _, w := range p.workers {
		if w.state == StateIdle {
			return
		}
	}

	w := p.addWorkerLocked()
	p.publish(events.TypePoolScaledUp, map[string]any{"worker_id": w.id, "workers": len(p.workers)})
	for w.state == StateIdle && len(p.queue) > 0 {
		w.assignLocked(p.popLocked())
	}
}

func (p *Pool) popLocked() *Task {
	t := p.queue[0]
	p.queue = p.queue[1:]
	return t
}

// addWorkerLocked appends a new worker and spawns its process.
func (p *Pool) addWorkerLocked() *Worker {
	w := &Worker{
		id:      p.nextWorkerID,
		pool:    p,
		respawn: true,
		logger:  log.WithComponent("worker").With("worker_id", p.nextWorkerID),
	}
	p.nextWorkerID++
	p.workers = append(p.workers, w)

	if err := w.spawnLocked(); err != nil {
		p.logger.Error("worker spawn failed", "worker_id", w.id, "error", err)
	}
	return w
}

// removeWorkerLocked drops a dead worker from the list.
func (p *Pool) removeWorkerLocked(dead *Worker) {
	for i, w := range p.workers {
		if w == dead {
			p.workers = append(p.workers[:i], p.workers[i+1:]...)
			return
		}
	}
}

// finishTaskLocked resolves a task exactly once, publishes the lifecycle
// event, and hands the outcome to the recorder off the scheduling path.
func (p *Pool) finishTaskLocked(t *Task, o Outcome) {
	if !t.resolveLocked(o) {
		return
	}

	eventType := events.TypeTaskCompleted
	if !o.Success {
		eventType = events.TypeTaskFailed
	}
	p.publish(eventType, map[string]any{"rid": t.Rid, "execution_ms": o.ExecutionTimeMs, "error": o.Err})

	if p.recorder == nil {
		return
	}
	entry := history.Entry{
		Rid:         t.Rid,
		Status:      history.StatusSucceeded,
		ExecutionMs: o.ExecutionTimeMs,
		SubmittedAt: t.SubmittedAt,
		CompletedAt: time.Now(),
	}
	if !o.Success {
		entry.Status = history.StatusFailed
		msg := o.Err
		entry.Error = &msg
	}
	go func() {
		if err := p.recorder.Record(context.Background(), entry); err != nil {
			p.logger.Warn("failed to record task outcome", "rid", entry.Rid, "error", err)
		}
	}()
}

func (p *Pool) publish(eventType string, data any) {
	if p.hub != nil {
		p.hub.Publish(eventType, data)
	}
}

// CheckAvailability spawns a one-shot diagnostic process to verify the
// external runtime is installed. Pool state is not touched either way.
func (p *Pool) CheckAvailability(ctx context.Context) bool {
	cctx, cancel := context.WithTimeout(ctx, availabilityProbeTimeout)
	defer cancel()

	if err := exec.CommandContext(cctx, p.cfg.Runtime, "--version").Run(); err != nil {
		p.logger.Warn("runtime availability check failed", "runtime", p.cfg.Runtime, "error", err)
		return false
	}
	return true
}

// WorkerStats is a point-in-time snapshot of one worker.
type WorkerStats struct {
	ID    int    `json:"id"`
	State string `json:"state"`
	Rid   string `json:"rid,omitempty"`
}

// Stats is a point-in-time snapshot of the pool.
type Stats struct {
	QueueDepth int           `json:"queue_depth"`
	MinWorkers int           `json:"min_workers"`
	MaxWorkers int           `json:"max_workers"`
	Workers    []WorkerStats `json:"workers"`
}

// Stats snapshots queue depth and worker states.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		QueueDepth: len(p.queue),
		MinWorkers: p.cfg.MinWorkers,
		MaxWorkers: p.cfg.MaxWorkers,
		Workers:    make([]WorkerStats, 0, len(p.workers)),
	}
	for _, w := range p.workers {
		ws := WorkerStats{ID: w.id, State: w.state.String()}
		if w.task != nil {
			ws.Rid = w.task.Rid
		}
		s.Workers = append(s.Workers, ws)
	}
	return s
}

// Shutdown force-kills every worker without draining the queue. In-flight
// and still-queued outcome handles are abandoned; this is best-effort
// cleanup, not a graceful drain.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.logger.Info("pool shutting down", "abandoned_queue", len(p.queue), "workers", len(p.workers))

	for _, w := range p.workers {
		w.shutdownLocked()
	}
	p.queue = nil
}
