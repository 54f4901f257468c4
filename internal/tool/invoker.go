package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kestrelworks/switchboard/internal/domain"
	"github.com/kestrelworks/switchboard/internal/logging"
)

// DefaultTimeout bounds a tool call when the caller passes none.
const DefaultTimeout = 60 * time.Second

// Invoker executes tool calls and converts every outcome (success text,
// capability failure, panic, schema violation, timeout) into a single
// ToolResult shape. It never returns a Go error: nothing below the agent
// loop throws past its own boundary.
type Invoker struct {
	registry *Registry
	log      *logging.Logger
}

// NewInvoker creates an invoker over the given registry.
func NewInvoker(registry *Registry, log *logging.Logger) *Invoker {
	return &Invoker{registry: registry, log: log.Sub("tool")}
}

// Invoke resolves and runs one tool call under a hard deadline.
//
// The capability runs on its own goroutine; when the deadline elapses its
// context is cancelled and any late result is discarded. The result is
// tagged timeout for a deadline, error for everything else that goes
// wrong, ok otherwise.
func (i *Invoker) Invoke(ctx context.Context, call domain.ToolCall, timeout time.Duration) domain.ToolResult {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	capability, ok := i.registry.Get(call.Name)
	if !ok {
		i.log.Warn().Str("tool", call.Name).Msg("unknown tool requested")
		return domain.ToolResult{CallID: call.ID, Status: domain.ToolError, Detail: "unknown tool: " + call.Name}
	}

	if detail := validateArgs(capability.InputSchema(), call.Args); detail != "" {
		i.log.Warn().Str("tool", call.Name).Str("detail", detail).Msg("tool arguments rejected")
		return domain.ToolResult{CallID: call.ID, Status: domain.ToolError, Detail: detail}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		payload string
		err     error
	}
	done := make(chan outcome, 1)

	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("capability panicked: %v", r)}
			}
		}()
		payload, err := capability.Execute(callCtx, call.Args)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			i.log.Debug().
				Str("tool", call.Name).
				Dur("elapsed", time.Since(start)).
				Err(out.err).
				Msg("tool failed")
			return domain.ToolResult{CallID: call.ID, Status: domain.ToolError, Detail: out.err.Error()}
		}
		i.log.Debug().
			Str("tool", call.Name).
			Dur("elapsed", time.Since(start)).
			Msg("tool completed")
		return domain.ToolResult{CallID: call.ID, Status: domain.ToolOK, Payload: out.payload}

	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			i.log.Warn().
				Str("tool", call.Name).
				Dur("timeout", timeout).
				Msg("tool timed out")
			return domain.ToolResult{CallID: call.ID, Status: domain.ToolTimeout, Detail: fmt.Sprintf("timed out after %s", timeout)}
		}
		// Parent cancellation (shutdown, pass watchdog)
		return domain.ToolResult{CallID: call.ID, Status: domain.ToolError, Detail: callCtx.Err().Error()}
	}
}

// validateArgs checks args against the capability's JSON schema. An empty
// schema accepts anything. Returns "" when valid, a detail string otherwise.
func validateArgs(schema string, args map[string]any) string {
	if schema == "" {
		return ""
	}
	if args == nil {
		args = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return "invalid tool schema: " + err.Error()
	}
	if result.Valid() {
		return ""
	}

	details := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		details = append(details, e.String())
	}
	return "invalid arguments: " + strings.Join(details, "; ")
}
