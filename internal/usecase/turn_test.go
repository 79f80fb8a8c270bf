package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"cardchat/internal/adapter/tool"
	"cardchat/internal/domain"
)

// scriptedProvider replays a fixed sequence of deltas.
type scriptedProvider struct {
	deltas []domain.StreamDelta
	err    error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Stream(context.Context, domain.CompletionRequest) (<-chan domain.StreamDelta, error) {
	if p.err != nil {
		return nil, p.err
	}
	ch := make(chan domain.StreamDelta, len(p.deltas))
	for _, d := range p.deltas {
		ch <- d
	}
	close(ch)
	return ch, nil
}

func textDeltas(parts ...string) []domain.StreamDelta {
	deltas := make([]domain.StreamDelta, 0, len(parts)+1)
	for _, p := range parts {
		deltas = append(deltas, domain.StreamDelta{Content: p})
	}
	return append(deltas, domain.StreamDelta{Done: true})
}

func toolCallDeltas(name string, args string) []domain.StreamDelta {
	return []domain.StreamDelta{
		{ToolCalls: []domain.ToolCall{{ID: "call-1", Name: name}}},
		{ToolCalls: []domain.ToolCall{{Arguments: json.RawMessage(args)}}},
		{Done: true},
	}
}

func testRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry(testLogger())
	for _, tl := range []domain.Tool{
		tool.NewISpyGameTool(0),
		tool.NewListStocksTool(0),
		tool.NewStockPriceTool(0),
		tool.NewStockPurchaseTool(),
		tool.NewEventsTool(0),
	} {
		if err := reg.Register(tl); err != nil {
			t.Fatalf("register %s: %v", tl.Name(), err)
		}
	}
	return reg
}

func newTestService(t *testing.T, provider domain.CompletionProvider, store *memStore, sessions domain.SessionSource) *ChatService {
	t.Helper()
	return NewChatService(ServiceDeps{
		Provider:    provider,
		Tools:       testRegistry(t),
		Store:       store,
		Sessions:    sessions,
		Logger:      testLogger(),
		Model:       "test-model",
		SettleDelay: time.Millisecond,
	})
}

func TestSubmitTextTurn(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{deltas: textDeltas("Hello", ", ", "friend!")}
	svc := newTestService(t, provider, store, sessionFor("user-1"))

	ctx := context.Background()
	st := svc.OpenState(ctx, "")
	result, err := svc.SubmitUserMessage(ctx, st, "hi")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	frag, done := result.Display.Current()
	if !done {
		t.Error("display must be finalized after a text turn")
	}
	if frag.Kind != domain.FragmentText || frag.Text != "Hello, friend!" {
		t.Errorf("got %q %q", frag.Kind, frag.Text)
	}

	msgs := st.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want user + assistant", len(msgs))
	}
	if msgs[1].Content.Text != "Hello, friend!" {
		t.Errorf("assistant text %q", msgs[1].Content.Text)
	}
	if _, ok := store.saved(st.ChatID()); !ok {
		t.Error("text turn must commit")
	}
}

func TestSubmitListStocksTurn(t *testing.T) {
	args := `{"stocks":[{"symbol":"AAPL","price":120,"delta":2},{"symbol":"DOGE","price":0.08,"delta":-0.01},{"symbol":"GME","price":25,"delta":10}]}`
	store := newMemStore()
	provider := &scriptedProvider{deltas: toolCallDeltas(domain.ToolListStocks, args)}
	svc := newTestService(t, provider, store, sessionFor("user-1"))

	ctx := context.Background()
	st := svc.OpenState(ctx, "")
	result, err := svc.SubmitUserMessage(ctx, st, "show me trending stocks")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	frag, done := result.Display.Current()
	if !done || frag.Kind != domain.FragmentStockList {
		t.Fatalf("got kind %q done=%v, want settled stock list", frag.Kind, done)
	}

	var quotes []domain.StockQuote
	if err := json.Unmarshal(frag.Data, &quotes); err != nil {
		t.Fatalf("decode card payload: %v", err)
	}
	if len(quotes) != 3 || quotes[0].Symbol != "AAPL" {
		t.Errorf("unexpected quotes %+v", quotes)
	}

	// Log shape: user, assistant tool-call, tool result.
	msgs := st.Messages()
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[1].Content.Kind != domain.ContentToolCall || msgs[2].Content.Kind != domain.ContentToolResult {
		t.Error("tool interaction must append call then result")
	}
	if msgs[1].Content.Calls[0].ID != msgs[2].Content.Results[0].CallID {
		t.Error("call/result pair must share a call ID")
	}

	// The committed snapshot replays to the same card.
	conv, ok := store.saved(st.ChatID())
	if !ok {
		t.Fatal("tool turn must commit")
	}
	entries := ProjectUI(conv, testRegistry(t))
	if entries[2].Display.Kind != domain.FragmentStockList {
		t.Errorf("replayed kind %q", entries[2].Display.Kind)
	}
}

func TestSubmitMultipleToolCallsAborts(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{deltas: []domain.StreamDelta{
		{ToolCalls: []domain.ToolCall{
			{ID: "c1", Name: domain.ToolListStocks, Arguments: []byte(`{"stocks":[]}`)},
			{ID: "c2", Name: domain.ToolGetEvents, Arguments: []byte(`{"events":[]}`)},
		}},
		{Done: true},
	}}
	svc := newTestService(t, provider, store, sessionFor("user-1"))

	ctx := context.Background()
	st := svc.OpenState(ctx, "")
	_, err := svc.SubmitUserMessage(ctx, st, "do two things")
	if !errors.Is(err, domain.ErrProviderProtocol) {
		t.Fatalf("got %v, want ErrProviderProtocol", err)
	}

	// Only the user message survives an aborted turn.
	msgs := st.Messages()
	if len(msgs) != 1 || msgs[0].Role != domain.RoleUser {
		t.Errorf("aborted turn left %d messages", len(msgs))
	}
}

func TestSubmitUnknownToolAborts(t *testing.T) {
	provider := &scriptedProvider{deltas: toolCallDeltas("launchRocket", `{}`)}
	svc := newTestService(t, provider, newMemStore(), sessionFor("user-1"))

	ctx := context.Background()
	st := svc.OpenState(ctx, "")
	_, err := svc.SubmitUserMessage(ctx, st, "launch")
	if !errors.Is(err, domain.ErrProviderProtocol) {
		t.Fatalf("got %v, want ErrProviderProtocol", err)
	}
	if len(st.Messages()) != 1 {
		t.Error("aborted turn must keep only the user message")
	}
}

func TestSubmitInvalidToolArgsAborts(t *testing.T) {
	// price must be a number.
	args := `{"symbol":"AAPL","price":"not-a-number","delta":1}`
	provider := &scriptedProvider{deltas: toolCallDeltas(domain.ToolShowStockPrice, args)}
	svc := newTestService(t, provider, newMemStore(), sessionFor("user-1"))

	ctx := context.Background()
	st := svc.OpenState(ctx, "")
	_, err := svc.SubmitUserMessage(ctx, st, "price of AAPL")
	if !errors.Is(err, domain.ErrProviderProtocol) {
		t.Fatalf("got %v, want ErrProviderProtocol", err)
	}
	if len(st.Messages()) != 1 {
		t.Error("aborted turn must keep only the user message")
	}
}

func TestSubmitProviderFailure(t *testing.T) {
	provider := &scriptedProvider{err: domain.ErrProviderError}
	svc := newTestService(t, provider, newMemStore(), sessionFor("user-1"))

	ctx := context.Background()
	st := svc.OpenState(ctx, "")
	_, err := svc.SubmitUserMessage(ctx, st, "hi")
	if !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("got %v, want ErrProviderError", err)
	}
}

func TestConfirmPurchaseSettlement(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, &scriptedProvider{}, store, sessionFor("user-1"))

	ctx := context.Background()
	st := svc.OpenState(ctx, "")
	st.AppendUser("buy 10 AAPL")

	receipt := svc.ConfirmPurchase(ctx, st, "AAPL", 120, 10)

	// Returns immediately with a purchasing spinner.
	frag, done := receipt.Purchasing.Current()
	if done || frag.Kind != domain.FragmentSpinner {
		t.Fatalf("got kind %q done=%v, want pending spinner", frag.Kind, done)
	}
	if !strings.Contains(frag.Text, "Purchasing 10 $AAPL") {
		t.Errorf("spinner text %q", frag.Text)
	}

	waitDone(t, receipt.Purchasing)
	waitDone(t, receipt.Note)

	frag, _ = receipt.Purchasing.Current()
	if !strings.Contains(frag.Text, "successfully purchased 10 $AAPL") ||
		!strings.Contains(frag.Text, "Total cost: $1200") {
		t.Errorf("final purchase text %q", frag.Text)
	}

	note, _ := receipt.Note.Current()
	if note.Kind != domain.FragmentSystemNote {
		t.Errorf("note kind %q", note.Kind)
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.saveCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if store.saveCount() == 0 {
		t.Fatal("purchase settlement must commit")
	}

	// The executed trade is recorded for the model as a system message
	// with raw numbers.
	var sysText string
	for _, m := range st.Messages() {
		if m.Role == domain.RoleSystem {
			sysText = m.Content.Text
		}
	}
	want := "[User has purchased 10 shares of AAPL at 120. Total cost = 1200]"
	if sysText != want {
		t.Errorf("system message %q, want %q", sysText, want)
	}
}

func TestSubmitForeignChatIDDoesNotOverwrite(t *testing.T) {
	store := newMemStore()
	store.chats["victim-chat"] = &domain.Conversation{
		ID:     "victim-chat",
		UserID: "victim",
		Title:  "victim's notes",
		Path:   "/chat/victim-chat",
		Messages: []domain.Message{
			{ID: "m1", Role: domain.RoleUser, Content: domain.TextContent("my private question")},
		},
	}

	provider := &scriptedProvider{deltas: textDeltas("as you wish")}
	svc := newTestService(t, provider, store, sessionFor("attacker"))

	ctx := context.Background()
	st := svc.OpenState(ctx, "victim-chat")

	// Another user's chat must open as a fresh conversation, not the
	// stored one.
	if st.ChatID() == "victim-chat" {
		t.Fatal("foreign chat ID must not be reused")
	}
	if len(st.Messages()) != 0 {
		t.Fatal("foreign conversation content must not be visible")
	}

	if _, err := svc.SubmitUserMessage(ctx, st, "overwrite please"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	victim, ok := store.saved("victim-chat")
	if !ok {
		t.Fatal("victim conversation vanished")
	}
	if victim.UserID != "victim" || victim.Title != "victim's notes" ||
		len(victim.Messages) != 1 || victim.Messages[0].Content.Text != "my private question" {
		t.Errorf("victim conversation was altered: %+v", victim)
	}

	// The attacker's turn lands under its own fresh chat ID.
	if _, ok := store.saved(st.ChatID()); !ok {
		t.Error("attacker turn must commit under its own chat ID")
	}
}

func TestCommitSkippedForNonOwner(t *testing.T) {
	store := newMemStore()
	conv := &domain.Conversation{
		ID:     "chat-1",
		UserID: "owner",
		Messages: []domain.Message{
			{ID: "m1", Role: domain.RoleUser, Content: domain.TextContent("hello")},
		},
	}

	st := ResumeChatState(conv, store, sessionFor("intruder"), testLogger())
	st.AppendAssistantText("injected")

	if err := st.Commit(context.Background()); err != nil {
		t.Fatalf("non-owner commit must be a silent no-op, got %v", err)
	}
	if store.saveCount() != 0 {
		t.Error("store must not be touched by a non-owner")
	}
}

func TestHistoryRequiresSession(t *testing.T) {
	store := newMemStore()
	store.chats["chat-1"] = &domain.Conversation{ID: "chat-1", UserID: "user-1"}
	svc := newTestService(t, &scriptedProvider{}, store, noSession())

	entries, err := svc.History(context.Background(), "chat-1", testRegistry(t))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if entries != nil {
		t.Error("absent session must yield nothing")
	}
}

func TestHistoryEnforcesOwnership(t *testing.T) {
	store := newMemStore()
	store.chats["chat-1"] = &domain.Conversation{
		ID:     "chat-1",
		UserID: "someone-else",
		Messages: []domain.Message{
			{ID: "m1", Role: domain.RoleUser, Content: domain.TextContent("secret")},
		},
	}
	svc := newTestService(t, &scriptedProvider{}, store, sessionFor("user-1"))

	entries, err := svc.History(context.Background(), "chat-1", testRegistry(t))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if entries != nil {
		t.Error("foreign conversation must yield nothing")
	}
}

func TestListChats(t *testing.T) {
	store := newMemStore()
	store.chats["chat-1"] = &domain.Conversation{ID: "chat-1", UserID: "user-1", Title: "stocks", Path: "/chat/chat-1"}
	store.chats["chat-2"] = &domain.Conversation{ID: "chat-2", UserID: "other"}
	svc := newTestService(t, &scriptedProvider{}, store, sessionFor("user-1"))

	chats, err := svc.ListChats(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chats) != 1 || chats[0].ID != "chat-1" || chats[0].Title != "stocks" {
		t.Errorf("unexpected summaries %+v", chats)
	}
}

func waitDone(t *testing.T, live *LiveFragment) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, done := live.Current(); done {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("fragment did not finalize in time")
}
