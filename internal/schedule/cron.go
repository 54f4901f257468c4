// Package schedule turns cron expressions into synthetic inbound messages,
// so scheduled work flows through the same bus and loop as connector
// traffic.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kestrelworks/switchboard/internal/bus"
	"github.com/kestrelworks/switchboard/internal/domain"
	"github.com/kestrelworks/switchboard/internal/logging"
)

// Connector is the connector id carried by scheduled messages. Each job's
// conversation id is its name, so every job gets its own session.
const Connector = "cron"

// Job is one configured schedule entry.
type Job struct {
	Name    string `yaml:"name"`
	Expr    string `yaml:"expr"`
	Message string `yaml:"message"`
}

// Scheduler publishes a synthetic InboundMessage on each job tick. Publishes
// are non-blocking: when the bus is full the tick is logged and dropped
// rather than queued without bound.
type Scheduler struct {
	runner *cron.Cron
	bus    *bus.Bus
	log    *logging.Logger
}

// New builds a scheduler with the given jobs registered. A job with an
// invalid expression or missing fields is a configuration error.
func New(b *bus.Bus, jobs []Job, log *logging.Logger) (*Scheduler, error) {
	s := &Scheduler{
		runner: cron.New(),
		bus:    b,
		log:    log.Sub("schedule"),
	}
	for _, job := range jobs {
		if err := s.add(job); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("schedule: job with empty name")
	}
	if job.Message == "" {
		return fmt.Errorf("schedule: job %q has no message", job.Name)
	}
	_, err := s.runner.AddFunc(job.Expr, func() { s.fire(job) })
	if err != nil {
		return fmt.Errorf("schedule: job %q: %w", job.Name, err)
	}
	return nil
}

func (s *Scheduler) fire(job Job) {
	msg := domain.InboundMessage{
		Connector:      Connector,
		SenderID:       Connector,
		ConversationID: job.Name,
		Content:        job.Message,
		Timestamp:      time.Now(),
	}
	if err := s.bus.TryPublishInbound(msg); err != nil {
		s.log.Warn().Str("job", job.Name).Err(err).Msg("dropping scheduled tick, bus full")
		return
	}
	s.log.Debug().Str("job", job.Name).Msg("scheduled message published")
}

// Start begins firing jobs. Each tick runs on the cron runner's goroutine.
func (s *Scheduler) Start() { s.runner.Start() }

// Stop halts scheduling and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	<-s.runner.Stop().Done()
}

// Jobs returns the number of registered entries.
func (s *Scheduler) Jobs() int { return len(s.runner.Entries()) }
