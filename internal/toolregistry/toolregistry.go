// Package toolregistry adapts the teacher's tool.Registry (and its MCP
// adapters) to the tool registry collaborator contract spec §6 names:
// list_tools / invoke, schema-described arguments and results the core
// itself never interprets.
package toolregistry

import (
	"context"
	"encoding/json"

	"github.com/taskcouncil/engine/internal/tool"

	"github.com/taskcouncil/engine/internal/errors"
)

// Descriptor is the schema-described shape list_tools returns (spec §6:
// "Arguments and results are schema-described by the tool; the core does
// not interpret them").
type Descriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Result is the opaque-to-the-core outcome of one invocation.
type Result struct {
	Output string
	Error  string
}

// Registry is the tool registry collaborator: a thin read/invoke facade
// over the teacher's tool.Registry, so workers gain tool access without
// depending on the teacher's agent-loop package directly.
type Registry struct {
	inner *tool.Registry
}

func New(inner *tool.Registry) *Registry {
	return &Registry{inner: inner}
}

// ListTools returns every registered tool's descriptor, sorted by name
// (delegated to tool.Registry.List's existing sort).
func (r *Registry) ListTools() []Descriptor {
	tools := r.inner.List()
	out := make([]Descriptor, 0, len(tools))
	for _, t := range tools {
		out = append(out, Descriptor{Name: t.Name(), Description: t.Description(), InputSchema: t.InputSchema()})
	}
	return out
}

// Invoke runs the named tool with the given JSON-encoded arguments,
// honoring ctx cancellation the same way a worker's own step call does
// (spec §5, "Cancellation propagates downward").
func (r *Registry) Invoke(ctx context.Context, toolName string, arguments json.RawMessage) (Result, error) {
	t, ok := r.inner.Get(toolName)
	if !ok {
		return Result{}, errors.Newf(errors.KindNotFound, "tool %q not registered", toolName)
	}

	result, err := t.Execute(ctx, arguments)
	if err != nil {
		return Result{}, errors.Wrap(errors.KindInternal, "tool "+toolName+" execution failed", err)
	}
	return Result{Output: result.Output, Error: result.Error}, nil
}
