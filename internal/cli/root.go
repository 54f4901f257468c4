// Package cli implements the switchboard command tree.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelworks/switchboard/internal/config"
	"github.com/kestrelworks/switchboard/internal/llm"
	"github.com/kestrelworks/switchboard/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	log *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "switchboard",
		Short: "switchboard — agent orchestration core",
		Long:  "Switchboard routes conversational messages through a bounded event bus,\nper-conversation sessions, and a tool-calling agent loop.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logLevel
			if level == "" {
				level = "info"
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "switchboard.yaml", "config file path")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newChatCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// loadConfig reads and validates the config file for a command run.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	issues := config.Validate(&cfg)
	if len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	if logLevel == "" && cfg.Logging.Level != "" {
		log = logging.New(nil, cfg.Logging.Level)
	}
	return cfg, nil
}

// buildClient constructs the configured model backend.
func buildClient(cfg config.ModelConfig) (llm.Client, error) {
	switch cfg.Provider {
	case "", "openai":
		return llm.NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "anthropic":
		return llm.NewAnthropic(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
