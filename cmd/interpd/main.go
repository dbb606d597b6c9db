package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/interpd/internal/api"
	"github.com/mattjoyce/interpd/internal/config"
	"github.com/mattjoyce/interpd/internal/doctor"
	"github.com/mattjoyce/interpd/internal/events"
	"github.com/mattjoyce/interpd/internal/history"
	"github.com/mattjoyce/interpd/internal/lock"
	"github.com/mattjoyce/interpd/internal/log"
	"github.com/mattjoyce/interpd/internal/pool"
	"github.com/mattjoyce/interpd/internal/storage"
	"github.com/mattjoyce/interpd/internal/tui/watch"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "doctor":
		os.Exit(runDoctor(args))
	case "watch":
		os.Exit(runWatch(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "version":
		fmt.Printf("interpd version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`interpd - Worker pool manager for external interpreter processes

Usage:
  interpd <command> [flags]

Commands:
  start         Run the daemon in the foreground
  doctor        Validate configuration and runtime environment
  watch         Live pool TUI against a running daemon
  config lock   Authorize current config state (update integrity hashes)
  version       Show version information
  help          Show this help message
`)
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: interpd config <action>")
		fmt.Fprintln(os.Stderr, "Actions: lock")
		return 1
	}

	switch args[0] {
	case "lock":
		return runConfigLock(args[1:])
	case "help", "--help", "-h":
		fmt.Println("Usage: interpd config lock [--config PATH]")
		fmt.Println("Regenerate the .checksums manifest for the current config file.")
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func resolveConfigPath(configPath string) (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DiscoverConfigPath()
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("interpd starting", "version", version, "config", path)

	pidLock, err := lock.Acquire(pidLockPath(cfg))
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLock.Path())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	store := history.New(db)
	hub := events.NewHub(256)

	p, err := pool.New(pool.Config{
		Runtime:      cfg.Runtime.Command,
		Script:       cfg.Runtime.Script,
		MinWorkers:   cfg.Pool.MinWorkers,
		MaxWorkers:   cfg.Pool.MaxWorkers,
		TaskTimeout:  cfg.Pool.TaskTimeout(),
		IdleTTL:      cfg.Pool.IdleTTL(),
		RespawnDelay: cfg.Pool.RespawnDelay(),
	}, pool.WithRecorder(store), pool.WithHub(hub))
	if err != nil {
		logger.Error("failed to start worker pool", "error", err)
		return 1
	}
	defer p.Shutdown()

	if !p.CheckAvailability(ctx) {
		logger.Warn("interpreter runtime probe failed; workers will keep retrying",
			"runtime", cfg.Runtime.Command)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.APIKey,
		}, p, store, hub, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("interpd running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("interpd stopped")
	return 0
}

func runDoctor(args []string) int {
	var configPath, format string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.StringVar(&format, "format", "human", "Output format (human, json)")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if jsonOut {
		format = "json"
	}

	path, err := resolveConfigPath(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(doctor.FromConfig(cfg)).Validate(context.Background())

	switch format {
	case "json":
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	default:
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("url", "", "Base URL of a running daemon (default from config)")
	apiKey := fs.String("api-key", "", "Bearer token (default from config)")
	configPath := fs.String("config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	url := *apiURL
	key := *apiKey
	if url == "" {
		path, err := resolveConfigPath(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		cfg, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		if !cfg.API.Enabled {
			fmt.Fprintln(os.Stderr, "watch requires the API to be enabled (api.enabled: true)")
			return 1
		}
		url = "http://" + cfg.API.Listen
		if key == "" {
			key = cfg.API.APIKey
		}
	}

	if _, err := tea.NewProgram(watch.New(url, key)).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "watch TUI failed: %v\n", err)
		return 1
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
		return 1
	}

	if err := config.GenerateChecksums(path); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}
	fmt.Printf("Locked configuration: %s\n", path)
	return 0
}

func pidLockPath(cfg *config.Config) string {
	dbPath := cfg.State.Path
	base := filepath.Base(dbPath)
	ext := filepath.Ext(base)
	return filepath.Join(filepath.Dir(dbPath), base[:len(base)-len(ext)]+".pid")
}
