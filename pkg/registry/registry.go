// Package registry maps tool names to invocable functions (spec
// component C4). It is a thin, process-wide table: tools are registered
// once at startup and looked up by name on every tool_call node.
package registry

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/surfit-labs/saw-core/pkg/model"
)

// Tool is the invocation contract every registered tool implements.
type Tool func(ctx context.Context, inputs map[string]any, runCtx *model.RunContext) model.ToolResult

// Registry is a concurrency-safe name -> Tool table.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	limits map[string]*rate.Limiter
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		limits: make(map[string]*rate.Limiter),
	}
}

// Register adds or replaces the tool bound to name.
func (r *Registry) Register(name string, tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
}

// Limit attaches a rate limiter to name. Invoke blocks until the
// limiter admits the call or its context is done. Tools with no limiter
// are invoked immediately.
func (r *Registry) Limit(name string, limit rate.Limit, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits[name] = rate.NewLimiter(limit, burst)
}

// ErrNotFound is returned by Invoke when name has no registered tool.
var ErrNotFound = fmt.Errorf("registry: tool not found")

// Invoke looks up name and calls it. Tools never panic across this
// boundary by contract; any failure must be reported via
// model.ToolResult.Success=false.
func (r *Registry) Invoke(ctx context.Context, name string, inputs map[string]any, runCtx *model.RunContext) (model.ToolResult, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	lim := r.limits[name]
	r.mu.RUnlock()
	if !ok {
		return model.ToolResult{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return model.ToolResult{}, fmt.Errorf("registry: rate limit wait for %s: %w", name, err)
		}
	}
	return tool(ctx, inputs, runCtx), nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}
