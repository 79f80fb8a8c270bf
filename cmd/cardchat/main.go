package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cardchat/internal/adapter/gateway"
	"cardchat/internal/adapter/llm"
	"cardchat/internal/adapter/store"
	"cardchat/internal/adapter/tool"
	"cardchat/internal/domain"
	"cardchat/internal/infra/config"
	"cardchat/internal/infra/logger"
	"cardchat/internal/infra/tracer"
	"cardchat/internal/usecase"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "cardchat:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	chatStore, err := store.NewSQLiteChatStore(cfg.Store.Path, log)
	if err != nil {
		return fmt.Errorf("open chat store: %w", err)
	}
	defer chatStore.Close()

	var provider domain.CompletionProvider = llm.NewOpenAIProvider(cfg.Provider, log)
	provider = llm.NewCircuitBreakerProvider(provider, cfg.Provider.Breaker, log)

	registry := tool.NewRegistry(log)
	settle := cfg.Tools.SettleDelay.Std()
	for _, t := range []domain.Tool{
		tool.NewISpyGameTool(settle),
		tool.NewListStocksTool(settle),
		tool.NewStockPriceTool(settle),
		tool.NewStockPurchaseTool(),
		tool.NewEventsTool(settle),
	} {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("register tool %s: %w", t.Name(), err)
		}
	}

	service := usecase.NewChatService(usecase.ServiceDeps{
		Provider:     provider,
		Tools:        registry,
		Store:        chatStore,
		Sessions:     domain.SessionSourceFunc(domain.SessionFromContext),
		Logger:       log,
		SystemPrompt: cfg.Agent.SystemPrompt,
		Model:        cfg.Agent.Model,
		MaxTokens:    cfg.Agent.MaxTokens,
		Temperature:  cfg.Agent.Temperature,
		SettleDelay:  settle,
	})

	auth := gateway.NewStaticTokenAuth(cfg.Gateway.Tokens)
	handler := gateway.NewChatHandler(service, registry, log)
	server := gateway.NewServer(cfg.Gateway, auth, handler, log)

	log.Info("cardchat starting",
		"model", cfg.Agent.Model,
		"provider", cfg.Provider.Name,
		"store", cfg.Store.Path,
	)
	return server.Start(ctx)
}
