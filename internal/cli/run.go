package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelworks/switchboard/internal/agent"
	"github.com/kestrelworks/switchboard/internal/bus"
	"github.com/kestrelworks/switchboard/internal/config"
	"github.com/kestrelworks/switchboard/internal/schedule"
	"github.com/kestrelworks/switchboard/internal/session"
	"github.com/kestrelworks/switchboard/internal/store"
	"github.com/kestrelworks/switchboard/internal/tool"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the orchestration core until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			core, err := buildCore(cfg)
			if err != nil {
				return err
			}
			defer core.close()

			go core.sessions.Sweep(ctx)
			go core.bus.DispatchOutbound(ctx)

			if core.scheduler.Jobs() > 0 {
				core.scheduler.Start()
				defer core.scheduler.Stop()
				log.Info().Int("jobs", core.scheduler.Jobs()).Msg("scheduler started")
			}

			log.Info().
				Str("provider", core.loopClientName).
				Str("store", cfg.Store.Driver).
				Msg("switchboard running")

			if err := core.loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info().Msg("switchboard stopped")
			return nil
		},
	}
	return cmd
}

// core bundles the wired components shared by run and chat.
type core struct {
	bus            *bus.Bus
	sessions       *session.Store
	loop           *agent.Loop
	scheduler      *schedule.Scheduler
	driver         store.Driver
	loopClientName string
}

func (c *core) close() {
	if err := c.driver.Close(); err != nil {
		log.Warn().Err(err).Msg("closing store driver")
	}
}

// buildCore wires the full pipeline from config: store driver, session
// store, model client, registry, bus, loop, scheduler. Capabilities are
// registered by embedding callers; the stock binary ships none.
func buildCore(cfg config.Config) (*core, error) {
	driver, err := store.Open(store.Config{
		Driver:        cfg.Store.Driver,
		Path:          cfg.Store.Path,
		RedisAddr:     cfg.Store.Redis.Addr,
		RedisPassword: cfg.Store.Redis.Password,
		RedisDB:       cfg.Store.Redis.DB,
		RedisTTL:      time.Duration(cfg.Store.Redis.TTLMinutes) * time.Minute,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	sessions := session.New(driver, session.Config{
		IdleTTL:       time.Duration(cfg.Session.IdleMinutes) * time.Minute,
		SweepInterval: time.Duration(cfg.Session.SweepMinutes) * time.Minute,
	}, log)

	client, err := buildClient(cfg.Model)
	if err != nil {
		driver.Close()
		return nil, err
	}

	b := bus.New(bus.Config{
		InboundCapacity:  cfg.Bus.InboundCapacity,
		OutboundCapacity: cfg.Bus.OutboundCapacity,
	}, log)

	registry := tool.NewRegistry()
	loop := agent.New(b, sessions, client, registry, agent.Config{
		Model:         cfg.Model.Model,
		SystemPrompt:  cfg.Agent.SystemPrompt,
		MaxIterations: cfg.Agent.MaxIterations,
		MaxTokens:     cfg.Agent.MaxTokens,
		Temperature:   cfg.Agent.Temperature,
		HistoryWindow: cfg.Agent.HistoryWindow,
		ToolTimeout:   time.Duration(cfg.Agent.ToolTimeoutSeconds) * time.Second,
		PassTimeout:   time.Duration(cfg.Agent.PassTimeoutSeconds) * time.Second,
	}, log)

	jobs := make([]schedule.Job, 0, len(cfg.Schedule.Jobs))
	for _, j := range cfg.Schedule.Jobs {
		jobs = append(jobs, schedule.Job{Name: j.Name, Expr: j.Expr, Message: j.Message})
	}
	scheduler, err := schedule.New(b, jobs, log)
	if err != nil {
		driver.Close()
		return nil, err
	}

	return &core{
		bus:            b,
		sessions:       sessions,
		loop:           loop,
		scheduler:      scheduler,
		driver:         driver,
		loopClientName: client.Name(),
	}, nil
}
