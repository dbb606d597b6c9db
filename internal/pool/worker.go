package pool

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/interpd/internal/events"
	"github.com/mattjoyce/interpd/internal/protocol"
)

// serverArgs are the fixed startup arguments the interpreter script expects.
var serverArgs = []string{"--server", "--auto-create"}

// utf8Env forces text-mode UTF-8 on the child so the line protocol is never
// garbled by locale-dependent encodings.
var utf8Env = []string{"PYTHONIOENCODING=utf-8", "PYTHONUTF8=1"}

// Worker owns exactly one external interpreter process: its pipes, its line
// framing, the single in-flight task, and the timers guarding it. All state
// below is guarded by the owning pool's mutex; pipe readers and the process
// watcher re-enter through lock helpers and are fenced by the generation
// counter so a superseded process can never touch current state.
type Worker struct {
	id     int
	pool   *Pool
	logger *slog.Logger

	state   State
	respawn bool // restart the process on crash; cleared by scale-down/shutdown
	gen     int  // bumped on every spawn

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	framer protocol.LineFramer

	task        *Task
	taskStarted time.Time

	timeoutTimer *time.Timer
	idleTimer    *time.Timer
	respawnTimer *time.Timer
}

// spawnLocked launches the external process in server mode and moves the
// worker to Idle. On failure the worker is parked in Respawning with a retry
// timer armed, so a missing runtime never wedges the pool permanently.
func (w *Worker) spawnLocked() error {
	w.state = StateStarting
	w.gen++
	gen := w.gen

	args := append([]string{w.pool.cfg.Script}, serverArgs...)
	cmd := exec.Command(w.pool.cfg.Runtime, args...)
	cmd.Env = append(os.Environ(), utf8Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		w.parkForRespawnLocked()
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		w.parkForRespawnLocked()
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		w.parkForRespawnLocked()
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		w.parkForRespawnLocked()
		return fmt.Errorf("start process: %w", err)
	}

	w.cmd = cmd
	w.stdin = stdin
	w.framer.Reset()
	w.state = StateIdle

	// The watcher must not call Wait until both readers drain to EOF, or
	// Wait's pipe teardown could truncate a result line mid-flight.
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		w.readStdout(gen, stdout)
	}()
	go func() {
		defer readers.Done()
		w.readStderr(stderr)
	}()
	go w.watch(gen, cmd, &readers)

	w.logger.Info("worker process started", "pid", cmd.Process.Pid)
	w.pool.publish(events.TypeWorkerSpawned, map[string]any{"worker_id": w.id, "pid": cmd.Process.Pid})
	return nil
}

// parkForRespawnLocked puts a worker whose spawn failed onto the crash path.
func (w *Worker) parkForRespawnLocked() {
	w.cmd = nil
	w.stdin = nil
	if w.respawn {
		w.state = StateRespawning
		w.armRespawnLocked()
	} else {
		w.state = StateDead
		w.pool.removeWorkerLocked(w)
	}
}

// assignLocked hands the task to this worker and writes the envelope. The
// task always leaves with a decided fate: in flight with a timeout armed, or
// failed immediately. Returns true when the worker accepted the task and is
// now busy.
func (w *Worker) assignLocked(t *Task) bool {
	if w.stdin == nil || w.cmd == nil {
		w.pool.finishTaskLocked(t, Outcome{
			Success: false,
			Err:     fmt.Sprintf("worker %d not ready: no input stream", w.id),
		})
		return false
	}

	w.cancelIdleTimerLocked()

	w.state = StateBusy
	w.task = t
	w.taskStarted = time.Now()

	timeout := w.pool.cfg.TaskTimeout
	gen := w.gen
	w.timeoutTimer = time.AfterFunc(timeout, func() {
		w.pool.mu.Lock()
		defer w.pool.mu.Unlock()
		w.handleTimeoutLocked(gen)
	})

	env := &protocol.Envelope{Rid: t.Rid, Interpretation: t.Payload}
	if err := protocol.EncodeEnvelope(w.stdin, env); err != nil {
		w.stopTimeoutTimerLocked()
		w.task = nil
		w.state = StateIdle
		w.pool.finishTaskLocked(t, Outcome{
			Success: false,
			Err:     fmt.Sprintf("failed to write envelope to worker %d: %v", w.id, err),
		})
		return false
	}

	w.logger.Debug("task assigned", "rid", t.Rid, "timeout", timeout)
	w.pool.publish(events.TypeTaskAssigned, map[string]any{"worker_id": w.id, "rid": t.Rid})
	return true
}

// handleChunkLocked frames a stdout chunk into lines and processes each one.
func (w *Worker) handleChunkLocked(chunk []byte) {
	for _, line := range w.framer.Feed(chunk) {
		w.handleLineLocked(line)
	}
}

// handleLineLocked classifies one stdout line. Diagnostic text goes to the
// log sink; a parsed Result closes the current task. A JSON-looking line that
// fails to parse is logged and the task stays pending, bounded by its
// timeout.
func (w *Worker) handleLineLocked(line []byte) {
	switch protocol.Classify(line) {
	case protocol.KindBlank:
		return

	case protocol.KindDiagnostic:
		w.logger.Debug("worker output", "line", string(line))
		return

	case protocol.KindJSON:
		res, err := protocol.ParseResult(line)
		if err != nil {
			w.logger.Warn("malformed result line, keeping task pending", "error", err)
			return
		}
		if w.task == nil {
			w.logger.Warn("unmatched result discarded", "status", res.Status)
			return
		}
		w.completeLocked(res)
	}
}

// completeLocked resolves the in-flight task with a matched Result and
// reports the worker free.
func (w *Worker) completeLocked(res *protocol.Result) {
	w.stopTimeoutTimerLocked()

	t := w.task
	w.task = nil
	w.state = StateIdle

	execMs := time.Since(w.taskStarted).Milliseconds()
	if res.TimeMs != nil {
		execMs = int64(*res.TimeMs)
	}

	w.pool.finishTaskLocked(t, Outcome{
		Success:         res.Ok(),
		Result:          res.Fields,
		Err:             res.Error,
		ExecutionTimeMs: execMs,
	})
	w.pool.onWorkerFreeLocked()
}

// handleTimeoutLocked fires when no Result arrived within the window: the
// task fails, the process is killed, and the crash path takes over.
func (w *Worker) handleTimeoutLocked(gen int) {
	if gen != w.gen || w.state != StateBusy || w.task == nil {
		return
	}
	w.timeoutTimer = nil

	t := w.task
	w.task = nil
	w.state = StateCrashed

	w.logger.Warn("task timed out, killing worker process", "rid", t.Rid, "timeout", w.pool.cfg.TaskTimeout)
	w.pool.finishTaskLocked(t, Outcome{
		Success:         false,
		Err:             fmt.Sprintf("task timed out after %s", w.pool.cfg.TaskTimeout),
		ExecutionTimeMs: time.Since(w.taskStarted).Milliseconds(),
	})

	w.killProcessLocked()
}

// handleExitLocked reacts to the process going away, expectedly or not.
func (w *Worker) handleExitLocked(waitErr error) {
	w.stdin = nil
	w.cmd = nil
	w.framer.Reset()
	w.stopTimeoutTimerLocked()
	w.cancelIdleTimerLocked()

	if w.pool.closed {
		w.state = StateDead
		return
	}

	if w.task != nil {
		t := w.task
		w.task = nil
		w.pool.finishTaskLocked(t, Outcome{
			Success:         false,
			Err:             fmt.Sprintf("worker process exited unexpectedly: %v", waitErr),
			ExecutionTimeMs: time.Since(w.taskStarted).Milliseconds(),
		})
	}

	if w.state == StateTerminating || !w.respawn {
		w.state = StateDead
		w.logger.Info("worker retired", "wait_err", waitErr)
		w.pool.removeWorkerLocked(w)
		w.pool.publish(events.TypeWorkerRetired, map[string]any{"worker_id": w.id})
		return
	}

	w.state = StateRespawning
	w.logger.Warn("worker process died, scheduling respawn",
		"wait_err", waitErr, "delay", w.pool.cfg.RespawnDelay)
	w.pool.publish(events.TypeWorkerCrashed, map[string]any{"worker_id": w.id})
	w.armRespawnLocked()
}

// armRespawnLocked schedules the next spawn attempt after the flat respawn
// delay. The delay keeps a persistently failing runtime from spinning the
// pool in a tight restart loop.
func (w *Worker) armRespawnLocked() {
	if w.respawnTimer != nil {
		return
	}
	w.respawnTimer = time.AfterFunc(w.pool.cfg.RespawnDelay, func() {
		w.pool.mu.Lock()
		defer w.pool.mu.Unlock()
		w.respawnTimer = nil
		if w.state != StateRespawning || w.pool.closed {
			return
		}
		if err := w.spawnLocked(); err != nil {
			w.logger.Error("respawn failed", "error", err)
			return
		}
		w.pool.onWorkerFreeLocked()
	})
}

// scheduleScaleDownLocked arms the idle TTL timer. Arming is idempotent: an
// already-armed timer is left running until a new assignment cancels it.
func (w *Worker) scheduleScaleDownLocked(ttl time.Duration) {
	if w.idleTimer != nil {
		return
	}
	gen := w.gen
	w.idleTimer = time.AfterFunc(ttl, func() {
		w.pool.mu.Lock()
		defer w.pool.mu.Unlock()
		w.handleIdleExpireLocked(gen)
	})
}

// handleIdleExpireLocked retires a worker that sat idle for the full TTL.
// Respawn is disabled first so the exit event removes it for good.
func (w *Worker) handleIdleExpireLocked(gen int) {
	w.idleTimer = nil
	if gen != w.gen || w.state != StateIdle {
		return
	}
	if len(w.pool.workers) <= w.pool.cfg.MinWorkers {
		return
	}

	w.logger.Info("idle TTL expired, scaling down worker")
	w.respawn = false
	w.state = StateTerminating
	w.killProcessLocked()
	w.pool.publish(events.TypePoolScaledDown, map[string]any{"worker_id": w.id})
}

func (w *Worker) cancelIdleTimerLocked() {
	if w.idleTimer != nil {
		w.idleTimer.Stop()
		w.idleTimer = nil
	}
}

func (w *Worker) stopTimeoutTimerLocked() {
	if w.timeoutTimer != nil {
		w.timeoutTimer.Stop()
		w.timeoutTimer = nil
	}
}

// killProcessLocked forcefully terminates the child. The watch goroutine
// observes the exit and drives the next transition.
func (w *Worker) killProcessLocked() {
	if w.cmd == nil || w.cmd.Process == nil {
		return
	}
	if err := w.cmd.Process.Kill(); err != nil {
		w.logger.Error("failed to kill worker process", "error", err)
	}
}

// shutdownLocked force-terminates the worker without respawn. In-flight work
// is abandoned; outcome handles are not resolved on shutdown.
func (w *Worker) shutdownLocked() {
	w.respawn = false
	w.stopTimeoutTimerLocked()
	w.cancelIdleTimerLocked()
	if w.respawnTimer != nil {
		w.respawnTimer.Stop()
		w.respawnTimer = nil
	}
	w.killProcessLocked()
}

// readStdout pumps raw chunks from the process into the framer. The
// generation fence drops bytes from a process this worker no longer owns.
func (w *Worker) readStdout(gen int, r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			w.pool.mu.Lock()
			if gen == w.gen {
				w.handleChunkLocked(buf[:n])
			}
			w.pool.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// readStderr forwards the error stream to the log sink line by line. It is
// never parsed for control meaning. The reader must keep draining until EOF
// no matter what the child writes, or a full stderr pipe blocks the process.
func (w *Worker) readStderr(r io.Reader) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			w.logger.Debug("worker stderr", "line", strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			return
		}
	}
}

// watch blocks on process exit and re-enters the state machine.
func (w *Worker) watch(gen int, cmd *exec.Cmd, readers *sync.WaitGroup) {
	readers.Wait()
	err := cmd.Wait()
	w.pool.mu.Lock()
	defer w.pool.mu.Unlock()
	if gen != w.gen {
		return
	}
	w.handleExitLocked(err)
}
