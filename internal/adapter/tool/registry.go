package tool

import (
	"encoding/json"
	"log/slog"
	"sync"

	"cardchat/internal/domain"
)

// Registry holds named tools. It doubles as the projector's renderer
// lookup: stored tool results rehydrate through the tool that produced
// them.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds a tool, wrapped with schema validation. Returns an error
// if the name is already registered. If schema compilation fails, the
// tool is registered unwrapped and a warning is logged.
func (r *Registry) Register(t domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicateTool, name)
	}

	wrapped, err := WithSchemaValidation(t)
	if err != nil {
		r.logger.Warn("schema validation disabled for tool",
			"tool", name, "error", err)
	} else {
		t = wrapped
	}

	r.tools[name] = t
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// Schemas returns all tool schemas for the function-calling protocol.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]domain.ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		schemas = append(schemas, t.Schema())
	}
	return schemas
}

// Rehydrate implements domain.RendererLookup. Unknown tool names render
// nothing.
func (r *Registry) Rehydrate(toolName string, result json.RawMessage) (domain.Fragment, bool) {
	r.mu.RLock()
	t, ok := r.tools[toolName]
	r.mu.RUnlock()
	if !ok {
		return domain.Fragment{}, false
	}
	return t.Rehydrate(result)
}

// Compile-time interface checks.
var (
	_ domain.ToolExecutor   = (*Registry)(nil)
	_ domain.RendererLookup = (*Registry)(nil)
)
