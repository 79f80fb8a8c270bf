package domain

import "encoding/json"

// FragmentKind identifies the renderable card a fragment carries. The
// server never interprets fragment internals; clients map kinds to
// components.
type FragmentKind string

const (
	FragmentSpinner        FragmentKind = "spinner"
	FragmentText           FragmentKind = "text"
	FragmentUserMessage    FragmentKind = "user_message"
	FragmentSystemNote     FragmentKind = "system_note"
	FragmentStockSkeleton  FragmentKind = "stock_skeleton"
	FragmentStocksSkeleton FragmentKind = "stocks_skeleton"
	FragmentEventsSkeleton FragmentKind = "events_skeleton"
	FragmentStock          FragmentKind = "stock"
	FragmentStockList      FragmentKind = "stock_list"
	FragmentPurchase       FragmentKind = "purchase"
	FragmentEvents         FragmentKind = "events"
	FragmentISpy           FragmentKind = "ispy"
)

// Fragment is an opaque renderable unit returned to the client.
type Fragment struct {
	Kind FragmentKind    `json:"kind"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IsZero reports whether the fragment renders nothing.
func (f Fragment) IsZero() bool { return f.Kind == "" }

// TextFragment wraps assistant text.
func TextFragment(text string) Fragment {
	return Fragment{Kind: FragmentText, Text: text}
}

// UserFragment wraps a user message.
func UserFragment(text string) Fragment {
	return Fragment{Kind: FragmentUserMessage, Text: text}
}

// NoteFragment wraps a system-style notice shown inline in the transcript.
func NoteFragment(text string) Fragment {
	return Fragment{Kind: FragmentSystemNote, Text: text}
}

// SpinnerFragment is the initial placeholder shown while a turn is pending.
func SpinnerFragment(text string) Fragment {
	return Fragment{Kind: FragmentSpinner, Text: text}
}

// SkeletonFragment is a loading placeholder for a card of the given kind.
func SkeletonFragment(kind FragmentKind) Fragment {
	return Fragment{Kind: kind}
}

// DataFragment builds a card fragment carrying a structured payload.
func DataFragment(kind FragmentKind, data json.RawMessage) Fragment {
	return Fragment{Kind: kind, Data: data}
}

// FragmentHandle is a live handle to a fragment already returned to the
// caller. Handlers and background continuations push intermediate values
// through it and finalize it, decoupled from any concurrency primitive.
type FragmentHandle interface {
	// Update replaces the current value. Ignored after Done.
	Update(Fragment)
	// Done finalizes the fragment. Further calls are ignored.
	Done(Fragment)
}

// Card payloads. These mirror the tool result shapes stored in the log.

// StockQuote is a single priced symbol.
type StockQuote struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Delta  float64 `json:"delta"`
}

// Purchase status values recorded in tool results.
const (
	PurchaseRequiresAction = "requires_action"
	PurchaseExpired        = "expired"
	PurchaseCompleted      = "completed"
)

// PurchaseOrder is a pending or settled stock purchase.
type PurchaseOrder struct {
	Symbol         string  `json:"symbol"`
	Price          float64 `json:"price"`
	NumberOfShares float64 `json:"numberOfShares"`
	Status         string  `json:"status,omitempty"`
}

// StockEvent is one timeline entry.
type StockEvent struct {
	Date        string `json:"date"` // ISO-8601
	Headline    string `json:"headline"`
	Description string `json:"description"`
}

// ISpyBoard seeds the I Spy game with the items to find.
type ISpyBoard struct {
	Items []string `json:"items"`
}
