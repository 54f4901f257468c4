// Package agent runs the think/act loop that turns inbound messages into
// replies. One Loop serves all conversations; per-conversation ordering is
// enforced by lanes (lanes.go) and per-session state by the session store's
// exclusive access.
package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/kestrelworks/switchboard/internal/bus"
	"github.com/kestrelworks/switchboard/internal/domain"
	"github.com/kestrelworks/switchboard/internal/llm"
	"github.com/kestrelworks/switchboard/internal/logging"
	"github.com/kestrelworks/switchboard/internal/session"
	"github.com/kestrelworks/switchboard/internal/tool"
)

// errorNotice is sent to the conversation when a pass fails outright.
const errorNotice = "Sorry, something went wrong while handling your message. Please try again."

// iterationLimitNotice is the synthesized answer when the model keeps
// requesting tools past MaxIterations.
const iterationLimitNotice = "I couldn't finish responding within the allowed number of steps."

// Config tunes one Loop.
type Config struct {
	Model         string
	SystemPrompt  string
	MaxIterations int // model rounds per message, default 10
	MaxTokens     int
	Temperature   *float64
	HistoryWindow int           // persisted turns included as context, default 50
	ToolTimeout   time.Duration // per tool call, default tool.DefaultTimeout
	PassTimeout   time.Duration // per message, 0 disables the watchdog

	LaneCapacity    int           // queued messages per conversation, default 16
	LaneIdleTimeout time.Duration // lane worker exits after idling, default 2m
}

func (c *Config) applyDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 50
	}
	if c.LaneCapacity <= 0 {
		c.LaneCapacity = 16
	}
	if c.LaneIdleTimeout <= 0 {
		c.LaneIdleTimeout = 2 * time.Minute
	}
}

// Loop consumes inbound messages, runs one pass per message against the
// model and the tool registry, and emits exactly one outbound reply each.
type Loop struct {
	bus      *bus.Bus
	sessions *session.Store
	client   llm.Client
	registry *tool.Registry
	invoker  *tool.Invoker
	cfg      Config
	log      *logging.Logger

	lanes *laneSet
}

// New wires a loop. The registry may be empty; the loop then never offers
// tools to the model.
func New(b *bus.Bus, sessions *session.Store, client llm.Client, registry *tool.Registry, cfg Config, log *logging.Logger) *Loop {
	cfg.applyDefaults()
	l := &Loop{
		bus:      b,
		sessions: sessions,
		client:   client,
		registry: registry,
		invoker:  tool.NewInvoker(registry, log),
		cfg:      cfg,
		log:      log.Sub("agent"),
	}
	l.lanes = newLaneSet(cfg.LaneCapacity, cfg.LaneIdleTimeout, l.process)
	return l
}

// Run consumes the inbound queue until ctx ends. Each message is routed to
// its conversation's lane, so messages for the same session are handled
// strictly in arrival order while distinct sessions proceed in parallel.
// A failing pass never stops the loop.
func (l *Loop) Run(ctx context.Context) error {
	defer l.lanes.drain()
	for {
		msg, err := l.bus.ConsumeInbound(ctx)
		if err != nil {
			return err
		}
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if err := l.lanes.dispatch(ctx, msg); err != nil {
			return err
		}
	}
}

// process handles one message end to end: run the pass, then publish the
// reply. Called from a lane worker, never concurrently for the same session.
func (l *Loop) process(ctx context.Context, msg domain.InboundMessage) {
	passID := gonanoid.Must(8)
	key := msg.SessionKey()

	passCtx := ctx
	if l.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, l.cfg.PassTimeout)
		defer cancel()
	}

	started := time.Now()
	reply, err := l.pass(passCtx, key, msg)
	if err != nil {
		var perr *session.PersistError
		switch {
		case errors.As(err, &perr):
			l.log.Error().Str("pass", passID).Str("key", key.String()).Err(perr.Err).
				Msg("pass completed but flush failed")
		case passCtx.Err() != nil && ctx.Err() == nil:
			l.log.Warn().Str("pass", passID).Str("key", key.String()).Dur("after", time.Since(started)).
				Msg("pass watchdog fired")
		default:
			l.log.Error().Str("pass", passID).Str("key", key.String()).Err(err).
				Msg("pass failed")
		}
		reply = errorNotice
	} else {
		l.log.Debug().Str("pass", passID).Str("key", key.String()).Dur("took", time.Since(started)).
			Msg("pass completed")
	}

	out := domain.OutboundMessage{
		Connector:      msg.Connector,
		ConversationID: msg.ConversationID,
		Content:        reply,
		ReplyTo:        msg.ID,
	}
	if err := l.bus.PublishOutbound(ctx, out); err != nil {
		l.log.Warn().Str("pass", passID).Str("key", key.String()).Err(err).
			Msg("dropping reply, outbound publish failed")
	}
}

// pass runs the bounded think/act loop for one message inside the session's
// exclusive access and returns the final reply text.
//
// The user turn and the assistant turn (with every completed tool
// call/result pair) are staged on the session and flushed together when the
// pass succeeds. Turn ids derive from the message id, so replaying a
// message after a crash overwrites its turns instead of duplicating them.
func (l *Loop) pass(ctx context.Context, key domain.SessionKey, msg domain.InboundMessage) (string, error) {
	var reply string
	err := l.sessions.With(ctx, key, func(sess *session.Session) error {
		history := historyMessages(sess.Turns(), l.cfg.HistoryWindow)

		sess.Append(domain.Turn{
			ID:        msg.ID + ":user",
			Role:      domain.RoleUser,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})

		messages := append(history, llm.Message{Role: domain.RoleUser, Content: msg.Content})
		assistant := domain.Turn{ID: msg.ID + ":assistant", Role: domain.RoleAssistant}
		defs := l.registry.Definitions()

		final := ""
		answered := false
		for i := 0; i < l.cfg.MaxIterations; i++ {
			resp, err := l.client.Complete(ctx, llm.Request{
				Model:       l.cfg.Model,
				System:      l.cfg.SystemPrompt,
				Messages:    messages,
				Tools:       defs,
				MaxTokens:   l.cfg.MaxTokens,
				Temperature: l.cfg.Temperature,
			})
			if err != nil {
				if len(assistant.ToolCalls) == 0 {
					return err
				}
				// Tool work already happened; keep it and close the turn
				// with the notice so a retry does not rerun the tools.
				l.log.Error().Err(err).Str("key", key.String()).Msg("model round failed mid-pass")
				final = errorNotice
				answered = true
				break
			}

			if len(resp.ToolCalls) == 0 {
				final = resp.Content
				answered = true
				break
			}

			results := make([]domain.ToolResult, 0, len(resp.ToolCalls))
			for _, call := range resp.ToolCalls {
				if call.ID == "" {
					call.ID = gonanoid.Must(12)
				}
				res := l.invoker.Invoke(ctx, call, l.cfg.ToolTimeout)
				assistant.ToolCalls = append(assistant.ToolCalls, domain.ToolCallRecord{Call: call, Result: res})
				results = append(results, res)
			}
			messages = append(messages,
				llm.Message{Role: domain.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls},
				llm.Message{Role: llm.RoleTool, ToolResults: results},
			)
		}
		if !answered {
			final = iterationLimitNotice
		}

		assistant.Content = final
		sess.Append(assistant)
		reply = final
		return nil
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

// historyMessages converts the most recent persisted turns into model
// messages. Tool activity inside past turns is replayed as call/result
// pairs so the model sees what it already did.
func historyMessages(turns []domain.Turn, window int) []llm.Message {
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}
	messages := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		if len(t.ToolCalls) == 0 {
			messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
			continue
		}
		calls := make([]domain.ToolCall, 0, len(t.ToolCalls))
		results := make([]domain.ToolResult, 0, len(t.ToolCalls))
		for _, rec := range t.ToolCalls {
			calls = append(calls, rec.Call)
			results = append(results, rec.Result)
		}
		messages = append(messages,
			llm.Message{Role: domain.RoleAssistant, ToolCalls: calls},
			llm.Message{Role: llm.RoleTool, ToolResults: results},
			llm.Message{Role: domain.RoleAssistant, Content: t.Content},
		)
	}
	return messages
}

// PendingLanes reports how many conversations currently have a live worker.
func (l *Loop) PendingLanes() int { return l.lanes.count() }
