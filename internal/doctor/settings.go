package doctor

import "github.com/mattjoyce/interpd/internal/config"

// FromConfig maps a loaded daemon configuration onto doctor settings.
func FromConfig(cfg *config.Config) Settings {
	return Settings{
		RuntimeCommand: cfg.Runtime.Command,
		Script:         cfg.Runtime.Script,
		MinWorkers:     cfg.Pool.MinWorkers,
		MaxWorkers:     cfg.Pool.MaxWorkers,
		TaskTimeoutMs:  cfg.Pool.TaskTimeoutMs,
		IdleTTLMs:      cfg.Pool.IdleTTLMs,
		RespawnDelayMs: cfg.Pool.RespawnDelayMs,
		StatePath:      cfg.State.Path,
		APIEnabled:     cfg.API.Enabled,
		APIListen:      cfg.API.Listen,
		APIKey:         cfg.API.APIKey,
	}
}
