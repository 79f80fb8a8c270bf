package llm

import (
	"context"
	"io"
	"strings"
	"testing"

	"cardchat/internal/domain"
)

func TestToWireRequestMapping(t *testing.T) {
	req := domain.CompletionRequest{
		SystemPrompt: "You are a helpful bot.",
		Model:        "gpt-4o",
		Temperature:  0.7,
		Messages: []domain.Message{
			{Role: domain.RoleUser, Content: domain.TextContent("show me AAPL")},
			{Role: domain.RoleAssistant, Content: domain.CallContent(domain.ToolCall{
				ID: "c1", Name: domain.ToolShowStockPrice,
				Arguments: []byte(`{"symbol":"AAPL","price":120,"delta":2}`),
			})},
			{Role: domain.RoleTool, Content: domain.ResultContent(domain.ToolResult{
				CallID: "c1", Name: domain.ToolShowStockPrice,
				Result: []byte(`{"symbol":"AAPL","price":120,"delta":2}`),
			})},
		},
		Tools: []domain.ToolSchema{
			{Name: domain.ToolShowStockPrice, Description: "desc", Parameters: []byte(`{"type":"object"}`)},
		},
	}

	wr := toWireRequest(req)

	if !wr.Stream {
		t.Error("requests must stream")
	}
	if len(wr.Messages) != 4 {
		t.Fatalf("got %d wire messages, want system + 3", len(wr.Messages))
	}
	if wr.Messages[0].Role != domain.RoleSystem || wr.Messages[0].Content != req.SystemPrompt {
		t.Error("system prompt must be prepended")
	}

	call := wr.Messages[2]
	if len(call.ToolCalls) != 1 || call.ToolCalls[0].ID != "c1" || call.ToolCalls[0].Type != "function" {
		t.Errorf("tool-call message %+v", call)
	}
	if call.ToolCalls[0].Function.Name != domain.ToolShowStockPrice {
		t.Errorf("tool call function %+v", call.ToolCalls[0].Function)
	}

	result := wr.Messages[3]
	if result.ToolCallID != "c1" || !strings.Contains(result.Content, "AAPL") {
		t.Errorf("tool-result message %+v", result)
	}

	if wr.Temperature == nil || *wr.Temperature != 0.7 {
		t.Error("temperature must be carried")
	}
	if len(wr.Tools) != 1 || wr.Tools[0].Type != "function" {
		t.Errorf("wire tools %+v", wr.Tools)
	}
}

func TestParseChunkText(t *testing.T) {
	delta, err := parseChunk([]byte(`{"id":"x","choices":[{"delta":{"content":"Hel"},"finish_reason":null}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if delta.Content != "Hel" || delta.Done {
		t.Errorf("got %+v", delta)
	}

	delta, err = parseChunk([]byte(`{"id":"x","choices":[{"delta":{},"finish_reason":"stop"}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !delta.Done {
		t.Error("finish_reason must mark the delta done")
	}
}

func TestParseChunkToolCallByIndex(t *testing.T) {
	// First chunk carries ID and name at index 0.
	delta, err := parseChunk([]byte(`{"choices":[{"delta":{"tool_calls":[
		{"index":0,"id":"c1","type":"function","function":{"name":"listStocks","arguments":""}}
	]},"finish_reason":null}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(delta.ToolCalls) != 1 || delta.ToolCalls[0].ID != "c1" || delta.ToolCalls[0].Name != "listStocks" {
		t.Fatalf("got %+v", delta.ToolCalls)
	}

	// Later chunks append argument text at the same index.
	delta, err = parseChunk([]byte(`{"choices":[{"delta":{"tool_calls":[
		{"index":0,"function":{"arguments":"{\"stocks\":"}}
	]},"finish_reason":null}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if string(delta.ToolCalls[0].Arguments) != `{"stocks":` {
		t.Errorf("got arguments %q", delta.ToolCalls[0].Arguments)
	}

	// A second index produces a second slot.
	delta, err = parseChunk([]byte(`{"choices":[{"delta":{"tool_calls":[
		{"index":1,"id":"c2","function":{"name":"getEvents","arguments":""}}
	]},"finish_reason":null}]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(delta.ToolCalls) != 2 || delta.ToolCalls[1].ID != "c2" {
		t.Errorf("got %+v", delta.ToolCalls)
	}
}

func TestParseSSEStream(t *testing.T) {
	body := io.NopCloser(strings.NewReader(strings.Join([]string{
		`: keepalive comment`,
		``,
		`data: {"choices":[{"delta":{"content":"Hello"},"finish_reason":null}]}`,
		``,
		`data: {"choices":[{"delta":{"content":" world"},"finish_reason":null}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")))

	var text strings.Builder
	sawDone := false
	for delta := range parseSSEStream(context.Background(), body, parseChunk) {
		text.WriteString(delta.Content)
		if delta.Done {
			sawDone = true
		}
	}

	if text.String() != "Hello world" {
		t.Errorf("got text %q", text.String())
	}
	if !sawDone {
		t.Error("[DONE] must surface as a Done delta")
	}
}

func TestParseSSEStreamSkipsGarbage(t *testing.T) {
	body := io.NopCloser(strings.NewReader(strings.Join([]string{
		`data: not json at all`,
		`data: {"choices":[{"delta":{"content":"ok"},"finish_reason":null}]}`,
		`data: [DONE]`,
	}, "\n")))

	var text strings.Builder
	for delta := range parseSSEStream(context.Background(), body, parseChunk) {
		text.WriteString(delta.Content)
	}
	if text.String() != "ok" {
		t.Errorf("got %q", text.String())
	}
}
