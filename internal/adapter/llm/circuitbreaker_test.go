package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"cardchat/internal/domain"
	"cardchat/internal/infra/config"
)

type failingProvider struct {
	failures int
	calls    int
}

func (p *failingProvider) Name() string { return "flaky" }

func (p *failingProvider) Stream(context.Context, domain.CompletionRequest) (<-chan domain.StreamDelta, error) {
	p.calls++
	if p.calls <= p.failures {
		return nil, domain.ErrProviderError
	}
	ch := make(chan domain.StreamDelta)
	close(ch)
	return ch, nil
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	inner := &failingProvider{failures: 100}
	cb := NewCircuitBreakerProvider(inner, config.BreakerConfig{
		MaxFailures: 2,
		Timeout:     config.Duration(time.Minute),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	req := domain.CompletionRequest{Model: "m"}

	for i := 0; i < 2; i++ {
		if _, err := cb.Stream(ctx, req); !errors.Is(err, domain.ErrProviderError) {
			t.Fatalf("call %d: got %v, want provider error", i, err)
		}
	}

	// The circuit is open: the provider is no longer reached.
	callsBefore := inner.calls
	if _, err := cb.Stream(ctx, req); err == nil {
		t.Fatal("expected fail-fast error while open")
	}
	if inner.calls != callsBefore {
		t.Error("open circuit must not reach the provider")
	}
}

func TestCircuitBreakerPassesThrough(t *testing.T) {
	inner := &failingProvider{}
	cb := NewCircuitBreakerProvider(inner, config.BreakerConfig{},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ch, err := cb.Stream(context.Background(), domain.CompletionRequest{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if ch == nil {
		t.Fatal("expected a delta channel")
	}
	if cb.Name() != "flaky" {
		t.Errorf("got name %q", cb.Name())
	}
}
