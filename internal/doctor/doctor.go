// Package doctor validates interpd configuration and the interpreter
// runtime environment before the daemon is started.
package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// probeTimeout bounds the runtime version probe.
const probeTimeout = 10 * time.Second

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Settings is the subset of daemon configuration the doctor inspects.
// Decoupled from the config package so the checks are testable without a
// config file on disk.
type Settings struct {
	RuntimeCommand string
	Script         string

	MinWorkers     int
	MaxWorkers     int
	TaskTimeoutMs  int
	IdleTTLMs      int
	RespawnDelayMs int

	StatePath  string
	APIEnabled bool
	APIListen  string
	APIKey     string
}

// Doctor validates settings against the host environment.
type Doctor struct {
	s Settings
}

// New creates a Doctor for the given settings.
func New(s Settings) *Doctor {
	return &Doctor{s: s}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	d.checkRuntime(ctx, r)
	d.checkScript(r)
	d.checkPoolBounds(r)
	d.checkState(r)
	d.checkAPI(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// checkRuntime resolves the runtime on PATH and runs a one-shot version
// probe, the same check the pool uses for availability.
func (d *Doctor) checkRuntime(ctx context.Context, r *Result) {
	if d.s.RuntimeCommand == "" {
		d.addError(r, "runtime", "runtime.command", "runtime.command is required")
		return
	}

	path, err := exec.LookPath(d.s.RuntimeCommand)
	if err != nil {
		d.addError(r, "runtime", "runtime.command",
			fmt.Sprintf("runtime %q not found on PATH", d.s.RuntimeCommand))
		return
	}

	cctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(cctx, path, "--version").CombinedOutput()
	if err != nil {
		d.addError(r, "runtime", "runtime.command",
			fmt.Sprintf("runtime probe %q --version failed: %v", d.s.RuntimeCommand, err))
		return
	}
	version := strings.TrimSpace(string(out))
	if version == "" {
		d.addWarning(r, "runtime", "runtime.command", "runtime probe produced no version output")
	}
}

func (d *Doctor) checkScript(r *Result) {
	if d.s.Script == "" {
		d.addError(r, "script", "runtime.script", "runtime.script is required")
		return
	}
	info, err := os.Stat(d.s.Script)
	if err != nil {
		d.addError(r, "script", "runtime.script",
			fmt.Sprintf("script %q is not readable: %v", d.s.Script, err))
		return
	}
	if info.IsDir() {
		d.addError(r, "script", "runtime.script",
			fmt.Sprintf("script %q is a directory", d.s.Script))
	}
}

func (d *Doctor) checkPoolBounds(r *Result) {
	if d.s.MinWorkers < 1 {
		d.addError(r, "pool", "pool.min_workers", "min_workers must be at least 1")
	}
	if d.s.MaxWorkers < d.s.MinWorkers {
		d.addError(r, "pool", "pool.max_workers",
			fmt.Sprintf("max_workers (%d) must be >= min_workers (%d)", d.s.MaxWorkers, d.s.MinWorkers))
	}
	if d.s.TaskTimeoutMs <= 0 {
		d.addError(r, "pool", "pool.task_timeout_ms", "task_timeout_ms must be positive")
	} else if d.s.TaskTimeoutMs < 1000 {
		d.addWarning(r, "pool", "pool.task_timeout_ms",
			fmt.Sprintf("task timeout %dms is very short (< 1s)", d.s.TaskTimeoutMs))
	}
	if d.s.IdleTTLMs <= 0 {
		d.addError(r, "pool", "pool.idle_ttl_ms", "idle_ttl_ms must be positive")
	}
	if d.s.RespawnDelayMs <= 0 {
		d.addError(r, "pool", "pool.respawn_delay_ms", "respawn_delay_ms must be positive")
	}
	if d.s.IdleTTLMs > 0 && d.s.TaskTimeoutMs > 0 && d.s.IdleTTLMs < d.s.TaskTimeoutMs {
		d.addWarning(r, "pool", "pool.idle_ttl_ms",
			"idle TTL is shorter than the task timeout; scaled-up workers may churn")
	}
}

func (d *Doctor) checkState(r *Result) {
	if d.s.StatePath == "" {
		d.addError(r, "state", "state.path", "state.path is required")
		return
	}
	dir := filepath.Dir(d.s.StatePath)
	info, err := os.Stat(dir)
	if err != nil {
		d.addWarning(r, "state", "state.path",
			fmt.Sprintf("state directory %q does not exist yet; it will be created on start", dir))
		return
	}
	if !info.IsDir() {
		d.addError(r, "state", "state.path",
			fmt.Sprintf("state directory %q is not a directory", dir))
	}
}

func (d *Doctor) checkAPI(r *Result) {
	if !d.s.APIEnabled {
		return
	}
	if d.s.APIListen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when the API is enabled")
	}
	if d.s.APIKey == "" {
		d.addWarning(r, "api", "api.api_key", "API enabled with no api_key; endpoints are unauthenticated")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Configuration valid.\n")
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
