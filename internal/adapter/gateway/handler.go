package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"cardchat/internal/domain"
	"cardchat/internal/usecase"
)

// ChatHandler dispatches request frames to the chat service and streams
// live fragment updates back to the client as event frames.
type ChatHandler struct {
	service   *usecase.ChatService
	renderers domain.RendererLookup
	logger    *slog.Logger
}

// NewChatHandler creates a handler.
func NewChatHandler(service *usecase.ChatService, renderers domain.RendererLookup, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{service: service, renderers: renderers, logger: logger}
}

type submitRequest struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

type submitResponse struct {
	ChatID  string `json:"chatId"`
	EntryID string `json:"entryId"`
}

type confirmPurchaseRequest struct {
	ChatID string  `json:"chatId"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

type confirmPurchaseResponse struct {
	ChatID   string   `json:"chatId"`
	EntryIDs []string `json:"entryIds"`
}

type historyRequest struct {
	ChatID string `json:"chatId"`
}

type historyResponse struct {
	ChatID  string            `json:"chatId"`
	Entries []usecase.UIEntry `json:"entries"`
}

type listResponse struct {
	Chats []usecase.ChatSummary `json:"chats"`
}

// displayEvent is pushed whenever a live fragment updates.
type displayEvent struct {
	ChatID  string          `json:"chatId"`
	EntryID string          `json:"entryId"`
	Display domain.Fragment `json:"display"`
	Done    bool            `json:"done"`
}

// Handle processes one request frame and returns the response frame.
// Event frames produced by live fragments are sent to c directly.
func (h *ChatHandler) Handle(ctx context.Context, c *client, frame Frame) Frame {
	switch frame.Method {
	case MethodSubmit:
		return h.handleSubmit(ctx, c, frame)
	case MethodConfirmPurchase:
		return h.handleConfirmPurchase(ctx, c, frame)
	case MethodHistory:
		return h.handleHistory(ctx, frame)
	case MethodListChats:
		return h.handleList(ctx, frame)
	default:
		return errorFrame(frame.ID, CodeUnknownMethod, "unknown method "+frame.Method)
	}
}

func (h *ChatHandler) handleSubmit(ctx context.Context, c *client, frame Frame) Frame {
	var req submitRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil || req.Content == "" {
		return errorFrame(frame.ID, CodeInvalidPayload, "chat.submit requires content")
	}

	st := h.service.OpenState(ctx, req.ChatID)
	result, err := h.service.SubmitUserMessage(ctx, st, req.Content)
	if err != nil {
		h.logger.Error("submit failed", "chat_id", st.ChatID(), "error", err)
		return errorFrame(frame.ID, h.codeFor(err), "the assistant could not complete this turn")
	}

	h.forward(c, result.ChatID, result.EntryID, result.Display)

	return h.respond(frame.ID, submitResponse{
		ChatID:  result.ChatID,
		EntryID: result.EntryID,
	})
}

func (h *ChatHandler) handleConfirmPurchase(ctx context.Context, c *client, frame Frame) Frame {
	var req confirmPurchaseRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil || req.ChatID == "" || req.Symbol == "" {
		return errorFrame(frame.ID, CodeInvalidPayload, "chat.confirm_purchase requires chatId and symbol")
	}

	st := h.service.OpenState(ctx, req.ChatID)
	receipt := h.service.ConfirmPurchase(ctx, st, req.Symbol, req.Price, req.Amount)

	noteID := receipt.EntryID + "-note"
	h.forward(c, st.ChatID(), receipt.EntryID, receipt.Purchasing)
	h.forward(c, st.ChatID(), noteID, receipt.Note)

	return h.respond(frame.ID, confirmPurchaseResponse{
		ChatID:   st.ChatID(),
		EntryIDs: []string{receipt.EntryID, noteID},
	})
}

func (h *ChatHandler) handleHistory(ctx context.Context, frame Frame) Frame {
	var req historyRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil || req.ChatID == "" {
		return errorFrame(frame.ID, CodeInvalidPayload, "chat.history requires chatId")
	}

	entries, err := h.service.History(ctx, req.ChatID, h.renderers)
	if err != nil {
		h.logger.Error("history failed", "chat_id", req.ChatID, "error", err)
		return errorFrame(frame.ID, CodeInternal, "could not load history")
	}
	if entries == nil {
		entries = []usecase.UIEntry{}
	}
	return h.respond(frame.ID, historyResponse{ChatID: req.ChatID, Entries: entries})
}

func (h *ChatHandler) handleList(ctx context.Context, frame Frame) Frame {
	chats, err := h.service.ListChats(ctx)
	if err != nil {
		h.logger.Error("list chats failed", "error", err)
		return errorFrame(frame.ID, CodeInternal, "could not list chats")
	}
	if chats == nil {
		chats = []usecase.ChatSummary{}
	}
	return h.respond(frame.ID, listResponse{Chats: chats})
}

// forward subscribes to a live fragment and relays every update to the
// client as event frames. The subscription is dropped once the fragment
// finalizes. Finalization may arrive from the settlement goroutine while
// Subscribe is still returning, so the unsubscribe handle is exchanged
// under a lock.
func (h *ChatHandler) forward(c *client, chatID, entryID string, live *usecase.LiveFragment) {
	var (
		mu          sync.Mutex
		unsubscribe func()
		finalized   bool
	)
	finish := func() {
		mu.Lock()
		defer mu.Unlock()
		finalized = true
		if unsubscribe != nil {
			unsubscribe()
			unsubscribe = nil
		}
	}

	unsub := live.Subscribe(func(f domain.Fragment, done bool) {
		if !f.IsZero() || done {
			frame, err := eventFrame(displayEvent{
				ChatID:  chatID,
				EntryID: entryID,
				Display: f,
				Done:    done,
			})
			if err != nil {
				h.logger.Error("encode display event failed", "chat_id", chatID, "error", err)
			} else {
				c.send(frame)
			}
		}
		if done {
			finish()
		}
	})

	mu.Lock()
	if finalized {
		unsub()
	} else {
		unsubscribe = unsub
	}
	mu.Unlock()
}

func (h *ChatHandler) respond(id string, payload any) Frame {
	frame, err := responseFrame(id, payload)
	if err != nil {
		h.logger.Error("encode response failed", "error", err)
		return errorFrame(id, CodeInternal, "encoding failure")
	}
	return frame
}

func (h *ChatHandler) codeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrProviderProtocol), errors.Is(err, domain.ErrProviderError):
		return CodeUnavailable
	case errors.Is(err, domain.ErrInvalidInput):
		return CodeInvalidPayload
	default:
		return CodeInternal
	}
}
