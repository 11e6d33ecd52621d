package conclave

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool defines a capability the panel's models may invoke.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the outcome of a tool execution. A non-empty Error still
// reaches the model as a tool result message; tool failure never aborts a
// participant.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// ToolRegistry holds the tools offered to the panel. It is configured before
// a run starts and read-only afterwards.
type ToolRegistry struct {
	byName map[string]Tool
	order  []string
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{byName: make(map[string]Tool)}
}

// Add registers every definition of t. Later registrations win on name clash.
func (r *ToolRegistry) Add(t Tool) {
	for _, d := range t.Definitions() {
		if _, ok := r.byName[d.Name]; !ok {
			r.order = append(r.order, d.Name)
		}
		r.byName[d.Name] = t
	}
}

// Definitions returns all registered tool definitions in registration order.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		for _, d := range r.byName[name].Definitions() {
			if d.Name == name {
				defs = append(defs, d)
			}
		}
	}
	return defs
}

// Execute dispatches a tool call by name. Unknown tools and handler panics
// come back as error-shaped results, not errors: the calling loop turns them
// into tool messages so the model always learns what happened.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (result ToolResult) {
	t, ok := r.byName[name]
	if !ok {
		return ToolResult{Error: "unknown tool: " + name}
	}
	defer func() {
		if p := recover(); p != nil {
			result = ToolResult{Error: fmt.Sprintf("tool %q panic: %v", name, p)}
		}
	}()
	res, err := t.Execute(ctx, name, args)
	if err != nil {
		return ToolResult{Error: err.Error()}
	}
	return res
}

// resultContent flattens a ToolResult into the string handed to the model.
func (tr ToolResult) resultContent() string {
	if tr.Error != "" {
		return "Error: " + tr.Error
	}
	return tr.Content
}
