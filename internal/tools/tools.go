// Package tools defines the tools the reasoning engine may invoke.
//
// Tools are held in a Registry keyed by name. Each tool is tagged general
// or privileged; privileged tools are hidden from the catalog offered to
// ordinary customers and refused if called anyway.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string                                                         `json:"name"`
	Description string                                                         `json:"description"`
	Parameters  map[string]any                                                 `json:"parameters"`
	Privileged  bool                                                           `json:"privileged,omitempty"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds available tools.
type Registry struct {
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger.With("component", "tools"),
	}
}

// Register adds a tool to the registry, replacing any tool of the same name.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns the names of tools visible at the given privilege,
// sorted.
func (r *Registry) Names(privileged bool) []string {
	var names []string
	for name, t := range r.tools {
		if t.Privileged && !privileged {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Catalog returns the function-style tool definitions offered to the
// model. Privileged tools are included only for privileged callers.
func (r *Registry) Catalog(privileged bool) []map[string]any {
	var result []map[string]any
	for _, name := range r.Names(privileged) {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name. The caller's privilege is read from ctx.
// Unknown names return *ErrToolUnavailable and privileged tools called
// without privilege return ErrPermissionDenied; neither runs a handler.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name}
	}

	caller := CallerFromContext(ctx)
	if tool.Privileged && !caller.Privileged {
		r.logger.Warn("privileged tool refused",
			"tool", name,
			"user", caller.UserID,
			"request_id", caller.RequestID,
		)
		return "", ErrPermissionDenied
	}

	if args == nil {
		args = map[string]any{}
	}
	result, err := tool.Handler(ctx, args)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return result, nil
}
