package domain

import "context"

// ChatStore persists conversations keyed by chat ID. Save is an upsert;
// concurrent turns on the same chat resolve last-write-wins.
type ChatStore interface {
	Save(ctx context.Context, conv *Conversation) error
	Load(ctx context.Context, chatID string) (*Conversation, error)
	ListByUser(ctx context.Context, userID string) ([]*Conversation, error)
	Delete(ctx context.Context, chatID string) error
}
