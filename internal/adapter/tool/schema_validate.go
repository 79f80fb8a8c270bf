package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"cardchat/internal/domain"
)

// SchemaValidatingTool wraps a Tool with JSON Schema validation. Generate
// validates the call arguments against the compiled schema before any
// side effect; invalid arguments are a provider protocol violation and
// abort the turn.
type SchemaValidatingTool struct {
	inner  domain.Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation wraps a tool so that Generate validates arguments
// before forwarding to the inner tool.
// Returns an error if the schema fails to compile.
func WithSchemaValidation(t domain.Tool) (domain.Tool, error) {
	raw := t.Schema().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil // no schema to validate against
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource for %q: %w", t.Name(), err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", t.Name(), err)
	}

	return &SchemaValidatingTool{inner: t, schema: compiled}, nil
}

func (s *SchemaValidatingTool) Name() string              { return s.inner.Name() }
func (s *SchemaValidatingTool) Description() string       { return s.inner.Description() }
func (s *SchemaValidatingTool) Schema() domain.ToolSchema { return s.inner.Schema() }

func (s *SchemaValidatingTool) Generate(ctx context.Context, call domain.ToolCall, st domain.StateWriter, live domain.FragmentHandle) (domain.Fragment, error) {
	var v interface{}
	if err := json.Unmarshal(call.Arguments, &v); err != nil {
		return domain.Fragment{}, domain.NewDomainError("Tool.Generate",
			domain.ErrProviderProtocol,
			fmt.Sprintf("%s: invalid JSON arguments: %v", s.inner.Name(), err))
	}

	if err := s.schema.Validate(v); err != nil {
		return domain.Fragment{}, domain.NewDomainError("Tool.Generate",
			domain.ErrProviderProtocol,
			fmt.Sprintf("%s: schema validation failed: %v", s.inner.Name(), err))
	}

	return s.inner.Generate(ctx, call, st, live)
}

func (s *SchemaValidatingTool) Rehydrate(result json.RawMessage) (domain.Fragment, bool) {
	return s.inner.Rehydrate(result)
}
