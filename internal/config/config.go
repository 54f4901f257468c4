// Package config loads and validates the switchboard YAML configuration.
package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Model: ModelConfig{
			Provider: "openai",
		},
		Agent: AgentConfig{
			MaxIterations:      10,
			HistoryWindow:      50,
			ToolTimeoutSeconds: 60,
		},
		Bus: BusConfig{
			InboundCapacity:  100,
			OutboundCapacity: 100,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "switchboard.db",
		},
		Session: SessionConfig{
			IdleMinutes:  30,
			SweepMinutes: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
