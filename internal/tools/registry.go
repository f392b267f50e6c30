// ABOUTME: Registry of named, schema-described tools the model can invoke
// ABOUTME: Execution never fails upward - errors are serialized so the tool loop continues

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/NEARBuilders/cyborg-gateway/internal/model"
)

// Handler executes one tool invocation. The returned string is handed back
// to the model verbatim.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Tool is one registered capability
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON schema for the arguments
	Handler     Handler
}

// Registry holds the closed set of tools advertised to the model
type Registry struct {
	tools  []*Tool
	byName map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byName: make(map[string]*Tool),
		logger: logger.With("component", "tools"),
	}
}

// Register adds a tool. Registering a duplicate name replaces the earlier entry.
func (r *Registry) Register(t *Tool) {
	if existing, ok := r.byName[t.Name]; ok {
		for i, reg := range r.tools {
			if reg == existing {
				r.tools[i] = t
				break
			}
		}
	} else {
		r.tools = append(r.tools, t)
	}
	r.byName[t.Name] = t
}

// Definitions returns the tool schemas advertised to the model,
// in registration order.
func (r *Registry) Definitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionSchema{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return defs
}

// Execute runs the named tool and always returns a string result.
// Unknown tools and handler failures are serialized as {"error": "..."}
// so the caller's loop never breaks on a tool error.
func (r *Registry) Execute(ctx context.Context, name string, args string) (result string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", rec)
			result = errorResult(fmt.Sprintf("tool %q panicked", name))
		}
	}()

	tool, ok := r.byName[name]
	if !ok {
		r.logger.Warn("unknown tool requested", "tool", name)
		return errorResult(fmt.Sprintf("unknown tool %q", name))
	}

	out, err := tool.Handler(ctx, json.RawMessage(args))
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "error", err)
		return errorResult(err.Error())
	}

	r.logger.Debug("tool executed", "tool", name, "result_len", len(out))
	return out
}

// errorResult serializes an error message as a JSON object string
func errorResult(msg string) string {
	data, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"internal tool error"}`
	}
	return string(data)
}
