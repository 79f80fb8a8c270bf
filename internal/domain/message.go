package domain

import "time"

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ContentKind discriminates the message content variant. The variant is
// chosen at construction time, never inferred from shape at read time.
type ContentKind string

const (
	ContentText       ContentKind = "text"
	ContentToolCall   ContentKind = "tool_call"
	ContentToolResult ContentKind = "tool_result"
)

// Content is the tagged payload of a Message: plain text, a sequence of
// tool-call entries, or a sequence of tool-result entries.
type Content struct {
	Kind    ContentKind  `json:"kind"`
	Text    string       `json:"text,omitempty"`
	Calls   []ToolCall   `json:"calls,omitempty"`
	Results []ToolResult `json:"results,omitempty"`
}

// TextContent builds a plain-text content variant.
func TextContent(text string) Content {
	return Content{Kind: ContentText, Text: text}
}

// CallContent builds a tool-call content variant.
func CallContent(calls ...ToolCall) Content {
	return Content{Kind: ContentToolCall, Calls: calls}
}

// ResultContent builds a tool-result content variant.
func ResultContent(results ...ToolResult) Content {
	return Content{Kind: ContentToolResult, Results: results}
}

// Message is the atomic unit of conversation history.
// IDs are ULIDs, unique within a conversation; ordering is insertion order
// and is the sole ordering signal.
type Message struct {
	ID      string  `json:"id"`
	Role    string  `json:"role"`
	Content Content `json:"content"`
	Name    string  `json:"name,omitempty"`
}

// Conversation is the persisted aggregate for one chat.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	Path      string    `json:"path"`
	Messages  []Message `json:"messages"`
}
