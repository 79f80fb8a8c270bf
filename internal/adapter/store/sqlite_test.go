package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardchat/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteChatStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewSQLiteChatStore(filepath.Join(t.TempDir(), "chats.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleConv(id, userID string) *domain.Conversation {
	return &domain.Conversation{
		ID:        id,
		Title:     "what is AAPL trading at?",
		UserID:    userID,
		CreatedAt: time.Now().Truncate(time.Millisecond),
		Path:      "/chat/" + id,
		Messages: []domain.Message{
			{ID: "m1", Role: domain.RoleUser, Content: domain.TextContent("what is AAPL trading at?")},
			{ID: "m2", Role: domain.RoleAssistant, Content: domain.CallContent(domain.ToolCall{
				ID: "c1", Name: domain.ToolShowStockPrice,
				Arguments: []byte(`{"symbol":"AAPL","price":120,"delta":2}`),
			})},
			{ID: "m3", Role: domain.RoleTool, Content: domain.ResultContent(domain.ToolResult{
				CallID: "c1", Name: domain.ToolShowStockPrice,
				Result: []byte(`{"symbol":"AAPL","price":120,"delta":2}`),
			})},
		},
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv := sampleConv("chat-1", "user-1")

	require.NoError(t, s.Save(ctx, conv))

	got, err := s.Load(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, conv.Title, got.Title)
	assert.Equal(t, conv.UserID, got.UserID)
	assert.Equal(t, conv.Path, got.Path)
	require.Len(t, got.Messages, 3)

	// The tagged content variant survives persistence.
	assert.Equal(t, domain.ContentToolCall, got.Messages[1].Content.Kind)
	assert.Equal(t, "c1", got.Messages[1].Content.Calls[0].ID)
	assert.Equal(t, domain.ContentToolResult, got.Messages[2].Content.Kind)
	assert.JSONEq(t, `{"symbol":"AAPL","price":120,"delta":2}`,
		string(got.Messages[2].Content.Results[0].Result))
}

func TestSaveUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	conv := sampleConv("chat-1", "user-1")

	require.NoError(t, s.Save(ctx, conv))

	conv.Title = "renamed"
	conv.Messages = append(conv.Messages, domain.Message{
		ID: "m4", Role: domain.RoleAssistant, Content: domain.TextContent("Anything else?"),
	})
	require.NoError(t, s.Save(ctx, conv))

	got, err := s.Load(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Len(t, got.Messages, 4)
}

func TestLoadMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrChatNotFound)
}

func TestListByUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	older := sampleConv("chat-old", "user-1")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := sampleConv("chat-new", "user-1")
	foreign := sampleConv("chat-other", "user-2")

	require.NoError(t, s.Save(ctx, older))
	require.NoError(t, s.Save(ctx, newer))
	require.NoError(t, s.Save(ctx, foreign))

	got, err := s.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "chat-new", got[0].ID, "newest first")
	assert.Equal(t, "chat-old", got[1].ID)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleConv("chat-1", "user-1")))
	require.NoError(t, s.Delete(ctx, "chat-1"))

	_, err := s.Load(ctx, "chat-1")
	assert.ErrorIs(t, err, domain.ErrChatNotFound)

	// Deleting a missing chat is a no-op.
	assert.NoError(t, s.Delete(ctx, "chat-1"))
}
