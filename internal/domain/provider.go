package domain

import "context"

// CompletionRequest is sent to the completion provider. Messages are the
// full ordered history projected to wire form by the adapter.
type CompletionRequest struct {
	SystemPrompt string       `json:"system_prompt"`
	Messages     []Message    `json:"messages"`
	Tools        []ToolSchema `json:"tools,omitempty"`
	Model        string       `json:"model,omitempty"`
	MaxTokens    int          `json:"max_tokens,omitempty"`
	Temperature  float64      `json:"temperature,omitempty"`
}

// StreamDelta is one incremental chunk of a streaming completion.
// Tool calls arrive as partial entries accumulated by index: the first
// delta for a call carries ID and Name, later deltas append Arguments.
type StreamDelta struct {
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Done      bool       `json:"done,omitempty"`
}

// CompletionProvider wraps the hosted model API. One logical response per
// call: either a text stream terminated by a Done delta, or exactly one
// tool invocation request.
type CompletionProvider interface {
	Name() string
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamDelta, error)
}
