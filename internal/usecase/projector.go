package usecase

import (
	"fmt"

	"cardchat/internal/domain"
)

// UIEntry is one renderable transcript entry derived from the message log.
type UIEntry struct {
	ID      string          `json:"id"`
	Display domain.Fragment `json:"display"`
}

// ProjectUI is a pure function from the authoritative message log to a
// display list. System messages are filtered out before indexing; entry
// IDs are chatID-index over the remaining messages.
//
// Tool messages render through the registered tool's rehydrator; an
// unregistered tool name renders nothing. Assistant messages carrying a
// tool-call sequence produce no display of their own — their effect is
// represented entirely by the paired tool message.
func ProjectUI(conv *domain.Conversation, renderers domain.RendererLookup) []UIEntry {
	visible := make([]domain.Message, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		if msg.Role != domain.RoleSystem {
			visible = append(visible, msg)
		}
	}

	entries := make([]UIEntry, 0, len(visible))
	for i, msg := range visible {
		entries = append(entries, UIEntry{
			ID:      fmt.Sprintf("%s-%d", conv.ID, i),
			Display: projectMessage(msg, renderers),
		})
	}
	return entries
}

func projectMessage(msg domain.Message, renderers domain.RendererLookup) domain.Fragment {
	switch {
	case msg.Role == domain.RoleTool && msg.Content.Kind == domain.ContentToolResult:
		for _, res := range msg.Content.Results {
			if frag, ok := renderers.Rehydrate(res.Name, res.Result); ok {
				return frag
			}
		}
	case msg.Role == domain.RoleUser && msg.Content.Kind == domain.ContentText:
		return domain.UserFragment(msg.Content.Text)
	case msg.Role == domain.RoleAssistant && msg.Content.Kind == domain.ContentText:
		return domain.TextFragment(msg.Content.Text)
	}
	return domain.Fragment{}
}
