package doctor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validSettings(t *testing.T) Settings {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "interp.py")
	if err := os.WriteFile(script, []byte("# server"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return Settings{
		// true(1) ignores arguments and exits 0, so the probe always passes.
		RuntimeCommand: "true",
		Script:         script,
		MinWorkers:     1,
		MaxWorkers:     2,
		TaskTimeoutMs:  120000,
		IdleTTLMs:      300000,
		RespawnDelayMs: 1000,
		StatePath:      filepath.Join(dir, "interpd.db"),
	}
}

func assertHasError(t *testing.T, r *Result, category, field string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && e.Field == field {
			return
		}
	}
	t.Fatalf("expected error [%s] %s, got %+v", category, field, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, field string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && w.Field == field {
			return
		}
	}
	t.Fatalf("expected warning [%s] %s, got %+v", category, field, r.Warnings)
}

func TestValidate_ValidSettings(t *testing.T) {
	t.Parallel()
	r := New(validSettings(t)).Validate(context.Background())
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %+v", r.Errors)
	}
}

func TestValidate_RuntimeNotOnPath(t *testing.T) {
	t.Parallel()
	s := validSettings(t)
	s.RuntimeCommand = "definitely-not-installed-anywhere"
	r := New(s).Validate(context.Background())
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "runtime", "runtime.command")
}

func TestValidate_MissingScript(t *testing.T) {
	t.Parallel()
	s := validSettings(t)
	s.Script = filepath.Join(t.TempDir(), "nope.py")
	r := New(s).Validate(context.Background())
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "script", "runtime.script")
}

func TestValidate_PoolBounds(t *testing.T) {
	t.Parallel()

	s := validSettings(t)
	s.MinWorkers = 0
	r := New(s).Validate(context.Background())
	assertHasError(t, r, "pool", "pool.min_workers")

	s = validSettings(t)
	s.MinWorkers = 3
	s.MaxWorkers = 2
	r = New(s).Validate(context.Background())
	assertHasError(t, r, "pool", "pool.max_workers")

	s = validSettings(t)
	s.TaskTimeoutMs = 0
	r = New(s).Validate(context.Background())
	assertHasError(t, r, "pool", "pool.task_timeout_ms")
}

func TestValidate_ShortTimeoutWarns(t *testing.T) {
	t.Parallel()
	s := validSettings(t)
	s.TaskTimeoutMs = 500
	r := New(s).Validate(context.Background())
	if !r.Valid {
		t.Fatalf("short timeout should warn, not fail: %+v", r.Errors)
	}
	assertHasWarning(t, r, "pool", "pool.task_timeout_ms")
}

func TestValidate_APIWithoutKey(t *testing.T) {
	t.Parallel()
	s := validSettings(t)
	s.APIEnabled = true
	s.APIListen = "127.0.0.1:8787"
	r := New(s).Validate(context.Background())
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %+v", r.Errors)
	}
	assertHasWarning(t, r, "api", "api.api_key")

	s.APIListen = ""
	r = New(s).Validate(context.Background())
	assertHasError(t, r, "api", "api.listen")
}

func TestFormatHuman(t *testing.T) {
	t.Parallel()

	r := &Result{Valid: true}
	if got := FormatHuman(r); got != "Configuration valid.\n" {
		t.Fatalf("unexpected output: %q", got)
	}

	r = &Result{
		Errors:   []Issue{{Category: "pool", Field: "pool.min_workers", Message: "min_workers must be at least 1"}},
		Warnings: []Issue{{Category: "api", Field: "api.api_key", Message: "no api_key"}},
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "Configuration invalid (1 error(s), 1 warning(s))") {
		t.Fatalf("missing summary line: %q", out)
	}
	if !strings.Contains(out, "ERROR [pool]") || !strings.Contains(out, "WARN  [api]") {
		t.Fatalf("missing issue lines: %q", out)
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()

	out, err := FormatJSON(&Result{Valid: true})
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Fatalf("unexpected JSON: %s", out)
	}
}
