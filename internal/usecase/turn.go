package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"cardchat/internal/domain"
	"cardchat/internal/infra/tracer"
)

// ServiceDeps holds injected dependencies for the chat service.
type ServiceDeps struct {
	Provider     domain.CompletionProvider
	Tools        domain.ToolExecutor
	Store        domain.ChatStore
	Sessions     domain.SessionSource
	Logger       *slog.Logger
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
	// SettleDelay is the pause between purchase settlement phases. It
	// exists to make async UI states visible, not for throughput.
	SettleDelay time.Duration
}

// ChatService runs turns: one request/response cycle beginning with a user
// submission and ending with settled assistant text or a completed tool
// interaction.
type ChatService struct {
	deps ServiceDeps
}

// NewChatService creates a chat service.
func NewChatService(deps ServiceDeps) *ChatService {
	if deps.SettleDelay == 0 {
		deps.SettleDelay = time.Second
	}
	return &ChatService{deps: deps}
}

// TurnResult is what a submission returns to the transport layer: a new
// transcript entry whose display is a live handle.
type TurnResult struct {
	ChatID  string
	EntryID string
	Display *LiveFragment
}

// OpenState loads the conversation for chatID and wraps it in turn-scoped
// state, or creates fresh state. A stored conversation owned by a
// different user is treated as absent: the caller gets fresh state under
// a fresh chat ID, so a later commit can never land on the stored row.
func (svc *ChatService) OpenState(ctx context.Context, chatID string) *ChatState {
	if chatID == "" {
		return NewChatState("", svc.deps.Store, svc.deps.Sessions, svc.deps.Logger)
	}

	conv, err := svc.deps.Store.Load(ctx, chatID)
	if err != nil {
		if !errors.Is(err, domain.ErrChatNotFound) {
			svc.deps.Logger.Warn("load conversation failed", "chat_id", chatID, "error", err)
		}
		return NewChatState(chatID, svc.deps.Store, svc.deps.Sessions, svc.deps.Logger)
	}
	if sess, ok := svc.deps.Sessions.Current(ctx); !ok || (conv.UserID != "" && conv.UserID != sess.UserID) {
		return NewChatState("", svc.deps.Store, svc.deps.Sessions, svc.deps.Logger)
	}
	return ResumeChatState(conv, svc.deps.Store, svc.deps.Sessions, svc.deps.Logger)
}

// SubmitUserMessage runs one turn: append the user message, stream the
// completion, and either settle assistant text or dispatch the single
// requested tool. Provider protocol violations abort the turn with only
// the user message appended.
func (svc *ChatService) SubmitUserMessage(ctx context.Context, st *ChatState, content string) (*TurnResult, error) {
	ctx, span := tracer.StartSpan(ctx, "chat.submit_turn",
		trace.WithAttributes(tracer.StringAttr("chat.id", st.ChatID())),
	)
	defer span.End()

	st.AppendUser(content)

	req := domain.CompletionRequest{
		SystemPrompt: svc.deps.SystemPrompt,
		Messages:     st.Messages(),
		Tools:        svc.deps.Tools.Schemas(),
		Model:        svc.deps.Model,
		MaxTokens:    svc.deps.MaxTokens,
		Temperature:  svc.deps.Temperature,
	}

	deltaCh, err := svc.deps.Provider.Stream(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("ChatService.SubmitUserMessage", err)
	}

	live := NewLiveFragment(domain.SpinnerFragment(""))
	result := &TurnResult{ChatID: st.ChatID(), EntryID: NewID(), Display: live}

	acc := newStreamAccumulator()
	for delta := range deltaCh {
		acc.add(delta)
		// Progressive text render while no tool call has appeared.
		if len(acc.toolCalls) == 0 && acc.text.Len() > 0 {
			live.Update(domain.TextFragment(acc.text.String()))
		}
	}

	// Text branch: settle the assistant text and persist.
	if len(acc.toolCalls) == 0 {
		text := acc.text.String()
		st.AppendAssistantText(text)
		if err := st.Commit(ctx); err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		live.Done(domain.TextFragment(text))
		tracer.SetOK(span)
		return result, nil
	}

	// Tool branch: the provider is contracted to request at most one
	// invocation per turn.
	if len(acc.toolCalls) > 1 {
		err := domain.NewDomainError("ChatService.SubmitUserMessage",
			domain.ErrProviderProtocol,
			fmt.Sprintf("%d tool calls in one turn", len(acc.toolCalls)))
		tracer.RecordError(span, err)
		return nil, err
	}

	call := acc.toolCalls[0]
	if call.ID == "" {
		call.ID = NewID()
	}
	span.SetAttributes(tracer.StringAttr("tool.name", call.Name))

	tool, err := svc.deps.Tools.Get(call.Name)
	if err != nil {
		err = domain.NewDomainError("ChatService.SubmitUserMessage",
			domain.ErrProviderProtocol, "unknown tool "+call.Name)
		tracer.RecordError(span, err)
		return nil, err
	}

	frag, err := tool.Generate(ctx, call, st, live)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("ChatService.SubmitUserMessage", err)
	}
	live.Done(frag)
	tracer.SetOK(span)
	return result, nil
}

// PurchaseReceipt is returned by ConfirmPurchase: the purchasing card and
// a system note, both live. Settlement continues in the background after
// the call returns.
type PurchaseReceipt struct {
	EntryID    string
	Purchasing *LiveFragment
	Note       *LiveFragment
}

// ConfirmPurchase executes a user-confirmed pending purchase. It returns
// immediately with a "purchasing" fragment; a background continuation
// pushes a "working on it" update, then finalizes both fragments, records
// the executed trade as a system message, and commits.
func (svc *ChatService) ConfirmPurchase(ctx context.Context, st *ChatState, symbol string, price, amount float64) *PurchaseReceipt {
	ctx, span := tracer.StartSpan(ctx, "chat.confirm_purchase",
		trace.WithAttributes(
			tracer.StringAttr("chat.id", st.ChatID()),
			tracer.StringAttr("stock.symbol", symbol),
		),
	)

	amountStr := formatAmount(amount)
	priceStr := formatAmount(price)

	purchasing := NewLiveFragment(domain.SpinnerFragment(
		fmt.Sprintf("Purchasing %s $%s...", amountStr, symbol)))
	note := NewLiveFragment(domain.Fragment{})
	receipt := &PurchaseReceipt{
		EntryID:    NewID(),
		Purchasing: purchasing,
		Note:       note,
	}

	// The caller is not blocked waiting for settlement; the fragments
	// already returned are updated in place.
	go func() {
		defer span.End()
		settleCtx := context.WithoutCancel(ctx)

		svc.settleWait(settleCtx)
		purchasing.Update(domain.SpinnerFragment(
			fmt.Sprintf("Purchasing %s $%s... working on it...", amountStr, symbol)))

		svc.settleWait(settleCtx)
		total := amount * price
		totalStr := formatAmount(total)

		purchasing.Done(domain.TextFragment(fmt.Sprintf(
			"You have successfully purchased %s $%s. Total cost: $%s",
			amountStr, symbol, totalStr)))
		note.Done(domain.NoteFragment(fmt.Sprintf(
			"You have purchased %s shares of %s at $%s. Total cost = $%s.",
			amountStr, symbol, priceStr, totalStr)))

		st.AppendSystem(fmt.Sprintf(
			"[User has purchased %s shares of %s at %s. Total cost = %s]",
			amountStr, symbol, priceStr, totalStr))
		if err := st.Commit(settleCtx); err != nil {
			svc.deps.Logger.Error("purchase commit failed",
				"chat_id", st.ChatID(), "error", err)
			tracer.RecordError(span, err)
			return
		}
		tracer.SetOK(span)
	}()

	return receipt
}

func (svc *ChatService) settleWait(ctx context.Context) {
	t := time.NewTimer(svc.deps.SettleDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// History rehydrates a client: it loads the conversation and projects the
// message log to display entries. An absent session, or a conversation
// owned by another user, yields nothing.
func (svc *ChatService) History(ctx context.Context, chatID string, renderers domain.RendererLookup) ([]UIEntry, error) {
	sess, ok := svc.deps.Sessions.Current(ctx)
	if !ok {
		return nil, nil
	}
	conv, err := svc.deps.Store.Load(ctx, chatID)
	if err != nil {
		if errors.Is(err, domain.ErrChatNotFound) {
			return nil, nil
		}
		return nil, domain.WrapOp("ChatService.History", err)
	}
	if conv.UserID != "" && conv.UserID != sess.UserID {
		return nil, nil
	}
	return ProjectUI(conv, renderers), nil
}

// ChatSummary is a sidebar-level view of a stored conversation.
type ChatSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// ListChats returns summaries of the current user's conversations,
// newest first. An absent session yields nothing.
func (svc *ChatService) ListChats(ctx context.Context) ([]ChatSummary, error) {
	sess, ok := svc.deps.Sessions.Current(ctx)
	if !ok {
		return nil, nil
	}
	convs, err := svc.deps.Store.ListByUser(ctx, sess.UserID)
	if err != nil {
		return nil, domain.WrapOp("ChatService.ListChats", err)
	}
	summaries := make([]ChatSummary, 0, len(convs))
	for _, conv := range convs {
		summaries = append(summaries, ChatSummary{
			ID:        conv.ID,
			Title:     conv.Title,
			Path:      conv.Path,
			CreatedAt: conv.CreatedAt,
		})
	}
	return summaries, nil
}

// formatAmount renders a number the way it appears in transcripts:
// shortest representation, no trailing zeros.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// streamAccumulator collects incremental deltas into the turn's outcome.
// Tool calls are tracked by index: the first delta for a call provides ID
// and Name, subsequent deltas append to Arguments.
type streamAccumulator struct {
	text      strings.Builder
	toolCalls []domain.ToolCall
}

// maxToolCallSlots bounds accumulator growth against malformed deltas.
const maxToolCallSlots = 8

func newStreamAccumulator() *streamAccumulator {
	return &streamAccumulator{}
}

func (acc *streamAccumulator) add(delta domain.StreamDelta) {
	acc.text.WriteString(delta.Content)

	for idx, tc := range delta.ToolCalls {
		if idx >= maxToolCallSlots {
			break
		}
		for len(acc.toolCalls) <= idx {
			acc.toolCalls = append(acc.toolCalls, domain.ToolCall{})
		}
		existing := &acc.toolCalls[idx]
		if tc.ID != "" {
			existing.ID = tc.ID
		}
		if tc.Name != "" {
			existing.Name = tc.Name
		}
		if len(tc.Arguments) > 0 {
			existing.Arguments = append(existing.Arguments, tc.Arguments...)
		}
	}
}
