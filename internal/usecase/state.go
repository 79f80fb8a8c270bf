package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"encoding/json"

	"cardchat/internal/domain"
)

// titleLimit is the number of characters of the first message kept as the
// conversation title.
const titleLimit = 100

// ChatState is the single authoritative owner of a conversation's message
// log for the duration of one turn. The log is append-only: no entry is
// mutated or removed after being appended, and the chat ID is immutable.
type ChatState struct {
	mu       sync.Mutex
	conv     domain.Conversation
	settled  bool
	store    domain.ChatStore
	sessions domain.SessionSource
	logger   *slog.Logger
}

// NewChatState creates state for a fresh conversation. An empty chatID
// gets a generated ULID.
func NewChatState(chatID string, store domain.ChatStore, sessions domain.SessionSource, logger *slog.Logger) *ChatState {
	if chatID == "" {
		chatID = NewID()
	}
	return &ChatState{
		conv: domain.Conversation{
			ID:        chatID,
			CreatedAt: time.Now(),
			Path:      "/chat/" + chatID,
		},
		store:    store,
		sessions: sessions,
		logger:   logger,
	}
}

// ResumeChatState wraps a previously persisted conversation for a new turn.
func ResumeChatState(conv *domain.Conversation, store domain.ChatStore, sessions domain.SessionSource, logger *slog.Logger) *ChatState {
	return &ChatState{
		conv:     *conv,
		store:    store,
		sessions: sessions,
		logger:   logger,
	}
}

// ChatID returns the immutable conversation ID.
func (s *ChatState) ChatID() string { return s.conv.ID }

// Messages returns a copy of the message log.
func (s *ChatState) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]domain.Message, len(s.conv.Messages))
	copy(cp, s.conv.Messages)
	return cp
}

// Settled reports whether the turn's outcome has been fully determined.
func (s *ChatState) Settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settled
}

func (s *ChatState) owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.UserID
}

func (s *ChatState) append(msgs ...domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv.Messages = append(s.conv.Messages, msgs...)
}

// AppendUser appends a user message and returns its ID. Must be called
// before the completion provider is invoked.
func (s *ChatState) AppendUser(content string) string {
	id := NewID()
	s.append(domain.Message{
		ID:      id,
		Role:    domain.RoleUser,
		Content: domain.TextContent(content),
	})
	return id
}

// AppendAssistantText appends the final assistant text once streaming has
// completed, and settles the turn.
func (s *ChatState) AppendAssistantText(content string) {
	s.append(domain.Message{
		ID:      NewID(),
		Role:    domain.RoleAssistant,
		Content: domain.TextContent(content),
	})
	s.mu.Lock()
	s.settled = true
	s.mu.Unlock()
}

// AppendToolInteraction records a call/result pair as two adjacent
// messages sharing callID, and settles the turn.
func (s *ChatState) AppendToolInteraction(toolName, callID string, args, result json.RawMessage) {
	s.append(
		domain.Message{
			ID:   NewID(),
			Role: domain.RoleAssistant,
			Content: domain.CallContent(domain.ToolCall{
				ID:        callID,
				Name:      toolName,
				Arguments: args,
			}),
		},
		domain.Message{
			ID:   NewID(),
			Role: domain.RoleTool,
			Content: domain.ResultContent(domain.ToolResult{
				CallID: callID,
				Name:   toolName,
				Result: result,
			}),
		},
	)
	s.mu.Lock()
	s.settled = true
	s.mu.Unlock()
}

// AppendSystem records an out-of-band event, e.g. "[User has purchased N
// shares]". It does not by itself settle the turn.
func (s *ChatState) AppendSystem(content string) {
	s.append(domain.Message{
		ID:      NewID(),
		Role:    domain.RoleSystem,
		Content: domain.TextContent(content),
	})
}

// Commit persists the conversation snapshot keyed by chat ID, but only
// when the caller is the authenticated owner. No session, or a session
// that does not own the conversation, silently skips persistence; this is
// an access-control short-circuit, not an error. Store failures propagate.
func (s *ChatState) Commit(ctx context.Context) error {
	sess, ok := s.sessions.Current(ctx)
	if !ok {
		s.logger.Debug("commit skipped: no session", "chat_id", s.conv.ID)
		return nil
	}
	if owner := s.owner(); owner != "" && owner != sess.UserID {
		s.logger.Debug("commit skipped: not the owner",
			"chat_id", s.conv.ID, "user_id", sess.UserID)
		return nil
	}

	s.mu.Lock()
	snapshot := s.conv
	snapshot.Messages = make([]domain.Message, len(s.conv.Messages))
	copy(snapshot.Messages, s.conv.Messages)
	if snapshot.UserID == "" {
		snapshot.UserID = sess.UserID
		s.conv.UserID = sess.UserID
	}
	snapshot.Title = deriveTitle(snapshot.Messages)
	s.conv.Title = snapshot.Title
	s.mu.Unlock()

	if err := s.store.Save(ctx, &snapshot); err != nil {
		return domain.WrapOp("ChatState.Commit", err)
	}
	s.logger.Debug("conversation committed",
		"chat_id", snapshot.ID, "messages", len(snapshot.Messages))
	return nil
}

// deriveTitle truncates the first message's text content to titleLimit
// characters.
func deriveTitle(msgs []domain.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	runes := []rune(msgs[0].Content.Text)
	if len(runes) > titleLimit {
		runes = runes[:titleLimit]
	}
	return string(runes)
}
