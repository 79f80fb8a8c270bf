package domain

import (
	"context"
	"encoding/json"
)

// Registered tool names. These are the identities the completion provider
// invokes and the view projector matches against.
const (
	ToolStartISpyGame     = "startISpyGame"
	ToolListStocks        = "listStocks"
	ToolShowStockPrice    = "showStockPrice"
	ToolShowStockPurchase = "showStockPurchase"
	ToolGetEvents         = "getEvents"
)

// ToolSchema describes a tool for the LLM function-calling protocol.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents the provider's request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is a tool-result entry recorded in the conversation log.
// CallID pairs it with exactly one ToolCall in the same logical turn.
type ToolResult struct {
	CallID string          `json:"call_id"`
	Name   string          `json:"name"`
	Result json.RawMessage `json:"result"`
}

// StateWriter is the mutation surface handed to tool handlers. It is the
// only way a handler may touch conversation state.
type StateWriter interface {
	// AppendToolInteraction records the call/result pair: an assistant
	// message carrying one tool-call entry followed by a tool message
	// carrying the matching tool-result entry.
	AppendToolInteraction(toolName, callID string, args, result json.RawMessage)
	// AppendSystem records an out-of-band event. It does not settle the turn.
	AppendSystem(content string)
	// Commit persists the conversation when the caller owns it; silently a
	// no-op for unauthenticated callers.
	Commit(ctx context.Context) error
}

// Tool is a named, schema-validated handler invocable by the completion
// provider in lieu of free text.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema

	// Generate runs the two-phase yield protocol: push a placeholder on
	// live immediately, perform domain logic, record the interaction on
	// st, and return the final fragment.
	Generate(ctx context.Context, call ToolCall, st StateWriter, live FragmentHandle) (Fragment, error)

	// Rehydrate maps a stored tool-result entry back to its fragment when
	// a client replays history. ok is false when the result cannot be
	// rendered.
	Rehydrate(result json.RawMessage) (frag Fragment, ok bool)
}

// ToolExecutor abstracts tool lookup for the turn runner.
type ToolExecutor interface {
	Get(name string) (Tool, error)
	Schemas() []ToolSchema
}

// RendererLookup resolves a stored tool result to a renderable fragment,
// used by the view projector. Unknown tool names render nothing.
type RendererLookup interface {
	Rehydrate(toolName string, result json.RawMessage) (Fragment, bool)
}
