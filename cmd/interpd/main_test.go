package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/interpd/internal/config"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	stdoutBytes, _ := io.ReadAll(stdoutR)
	stderrBytes, _ := io.ReadAll(stderrR)

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	script := filepath.Join(dir, "interp.py")
	if err := os.WriteFile(script, []byte("# server"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	configYAML := fmt.Sprintf(`service:
  log_level: info
runtime:
  command: "true"
  script: %s
pool:
  min_workers: 1
  max_workers: 2
state:
  path: %s
`, script, filepath.Join(dir, "interpd.db"))

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(configYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func TestRunDoctorValidConfig(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runDoctor([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stdout=%q stderr=%q)", code, stdout, stderr)
	}
	if !strings.Contains(stdout, "Configuration valid") {
		t.Fatalf("unexpected doctor output: %q", stdout)
	}
}

func TestRunDoctorJSONOutput(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runDoctor([]string{"--config", configPath, "--json"})
	})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(stdout, `"valid": true`) {
		t.Fatalf("expected JSON output, got %q", stdout)
	}
}

func TestRunDoctorMissingRuntime(t *testing.T) {
	configPath := writeTestConfig(t)
	raw, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	edited := strings.Replace(string(raw), `command: "true"`, "command: definitely-not-installed-anywhere", 1)
	if err := os.WriteFile(configPath, []byte(edited), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runDoctor([]string{"--config", configPath})
	})
	if code != 1 {
		t.Fatalf("expected exit 1, got %d (stdout=%q)", code, stdout)
	}
	if !strings.Contains(stdout, "Configuration invalid") {
		t.Fatalf("unexpected doctor output: %q", stdout)
	}
}

func TestRunConfigLockWritesChecksums(t *testing.T) {
	configPath := writeTestConfig(t)

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigLock([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr=%q)", code, stderr)
	}
	if !strings.Contains(stdout, "Locked configuration") {
		t.Fatalf("unexpected output: %q", stdout)
	}

	checksumPath := filepath.Join(filepath.Dir(configPath), ".checksums")
	if _, err := os.Stat(checksumPath); err != nil {
		t.Fatalf("expected .checksums manifest: %v", err)
	}

	// A locked config still loads cleanly.
	if _, err := config.Load(configPath); err != nil {
		t.Fatalf("locked config failed to load: %v", err)
	}
}

func TestPIDLockPathDerivedFromStatePath(t *testing.T) {
	cfg := config.Defaults()
	cfg.State.Path = "/var/lib/interpd/interpd.db"
	if got := pidLockPath(cfg); got != "/var/lib/interpd/interpd.pid" {
		t.Fatalf("unexpected pid lock path: %q", got)
	}
}
