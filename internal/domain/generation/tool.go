package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/invopop/jsonschema"

	"travel-companion/internal/infrastructure/metrics"
)

var (
	// ErrToolDepthExceeded is returned when the model keeps requesting tools
	// past the configured number of rounds.
	ErrToolDepthExceeded = errors.New("tool orchestration depth exceeded")
	// ErrUnknownTool is returned when the model calls a tool that was not exposed.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("model returned no text")
)

// Tool is a function the model may call during generation.
type Tool interface {
	Name() string
	Description() string
	Schema() *jsonschema.Schema
	Call(ctx context.Context, args json.RawMessage) (any, error)
}

// Generator runs one generation call, including any tool rounds.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// ReflectSchema builds an inline JSON schema for a tool argument struct.
func ReflectSchema(v any) *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		RequiredFromJSONSchemaTags: false,
	}
	schema := r.Reflect(v)
	schema.Version = ""
	schema.ID = ""
	return schema
}

// FuncTool adapts a typed function to the Tool interface.
type FuncTool[A any] struct {
	name        string
	description string
	schema      *jsonschema.Schema
	fn          func(ctx context.Context, args A) (any, error)
}

// NewFuncTool creates a tool whose arguments decode into A.
func NewFuncTool[A any](name, description string, fn func(ctx context.Context, args A) (any, error)) *FuncTool[A] {
	var zero A
	return &FuncTool[A]{
		name:        name,
		description: description,
		schema:      ReflectSchema(&zero),
		fn:          fn,
	}
}

func (t *FuncTool[A]) Name() string               { return t.name }
func (t *FuncTool[A]) Description() string        { return t.description }
func (t *FuncTool[A]) Schema() *jsonschema.Schema { return t.schema }

// Call decodes args and invokes the function.
func (t *FuncTool[A]) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var decoded A
	if len(args) > 0 {
		if err := json.Unmarshal(args, &decoded); err != nil {
			return nil, fmt.Errorf("decode %s arguments: %w", t.name, err)
		}
	}
	return t.fn(ctx, decoded)
}

// Registry holds the tools available to generation.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry with the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	if t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Resolve returns the tools for the given names, skipping unknown names.
func (r *Registry) Resolve(names []string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(names))
	for _, n := range names {
		if t, ok := r.tools[n]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Names lists registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Invoke finds a tool by name within tools and calls it under timeout. The
// returned value is always JSON-serializable; failures are reported inside
// it so the model can react.
func Invoke(ctx context.Context, tools []Tool, name string, args json.RawMessage, timeout time.Duration) map[string]any {
	var tool Tool
	for _, t := range tools {
		if t.Name() == name {
			tool = t
			break
		}
	}
	if tool == nil {
		metrics.RecordToolCall(name, "unknown", 0)
		return map[string]any{"error": fmt.Sprintf("%v: %s", ErrUnknownTool, name)}
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := tool.Call(callCtx, args)
	if err != nil {
		metrics.RecordToolCall(name, "error", time.Since(start).Seconds())
		return map[string]any{"error": err.Error()}
	}
	metrics.RecordToolCall(name, "success", time.Since(start).Seconds())
	return map[string]any{"result": result}
}
