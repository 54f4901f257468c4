package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	validProviders := []string{"openai", "anthropic"}
	if cfg.Model.Provider != "" && !slices.Contains(validProviders, cfg.Model.Provider) {
		issues = append(issues, ValidationIssue{
			Path:    "model.provider",
			Message: fmt.Sprintf("must be one of %v, got %q", validProviders, cfg.Model.Provider),
		})
	}

	if cfg.Agent.MaxIterations < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "agent.maxIterations",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Agent.MaxIterations),
		})
	}
	if cfg.Agent.PassTimeoutSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "agent.passTimeoutSeconds",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Agent.PassTimeoutSeconds),
		})
	}

	if cfg.Bus.InboundCapacity <= 0 {
		issues = append(issues, ValidationIssue{
			Path:    "bus.inboundCapacity",
			Message: fmt.Sprintf("must be positive, got %d", cfg.Bus.InboundCapacity),
		})
	}
	if cfg.Bus.OutboundCapacity <= 0 {
		issues = append(issues, ValidationIssue{
			Path:    "bus.outboundCapacity",
			Message: fmt.Sprintf("must be positive, got %d", cfg.Bus.OutboundCapacity),
		})
	}

	validDrivers := []string{"sqlite", "redis", "memory"}
	if cfg.Store.Driver != "" && !slices.Contains(validDrivers, cfg.Store.Driver) {
		issues = append(issues, ValidationIssue{
			Path:    "store.driver",
			Message: fmt.Sprintf("must be one of %v, got %q", validDrivers, cfg.Store.Driver),
		})
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.Path == "" {
		issues = append(issues, ValidationIssue{
			Path:    "store.path",
			Message: "required for the sqlite driver",
		})
	}
	if cfg.Store.Driver == "redis" && cfg.Store.Redis.Addr == "" {
		issues = append(issues, ValidationIssue{
			Path:    "store.redis.addr",
			Message: "required for the redis driver",
		})
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	seen := make(map[string]bool)
	for i, job := range cfg.Schedule.Jobs {
		path := fmt.Sprintf("schedule.jobs[%d]", i)
		if job.Name == "" {
			issues = append(issues, ValidationIssue{Path: path + ".name", Message: "name is required"})
		} else if seen[job.Name] {
			issues = append(issues, ValidationIssue{
				Path:    path + ".name",
				Message: fmt.Sprintf("duplicate job name %q", job.Name),
			})
		}
		seen[job.Name] = true
		if job.Expr == "" {
			issues = append(issues, ValidationIssue{Path: path + ".expr", Message: "expr is required"})
		}
		if job.Message == "" {
			issues = append(issues, ValidationIssue{Path: path + ".message", Message: "message is required"})
		}
	}

	return issues
}
