// Package tool resolves named capabilities and normalizes their outcomes.
package tool

import (
	"context"
	"fmt"
	"sort"

	"github.com/kestrelworks/switchboard/internal/llm"
)

// Capability is an external tool the agent can invoke mid-loop.
// Implementations live outside the core; the core only sees this contract.
type Capability interface {
	// Name returns the tool's identifier.
	Name() string

	// Description returns a human-readable description for the model.
	Description() string

	// InputSchema returns the JSON Schema for the tool's arguments, or ""
	// when the tool accepts anything.
	InputSchema() string

	// Execute runs the tool and returns its text output.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry maps tool names to capabilities. Registration happens during
// startup wiring; lookups at runtime are read-only.
type Registry struct {
	caps map[string]Capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

// Register adds a capability. A duplicate name is a configuration error,
// not a runtime one.
func (r *Registry) Register(c Capability) error {
	if _, exists := r.caps[c.Name()]; exists {
		return fmt.Errorf("tool: duplicate capability %q", c.Name())
	}
	r.caps[c.Name()] = c
	return nil
}

// Get returns a capability by name.
func (r *Registry) Get(name string) (Capability, bool) {
	c, ok := r.caps[name]
	return c, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns model-ready tool definitions, sorted by name so the
// schema presented to the model is deterministic.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.caps))
	for _, name := range r.Names() {
		c := r.caps[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        c.Name(),
			Description: c.Description(),
			InputSchema: c.InputSchema(),
		})
	}
	return defs
}
