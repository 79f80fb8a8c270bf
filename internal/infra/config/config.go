package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// apiKeyEnv overrides provider.api_key when set, keeping secrets out of
// config files.
const apiKeyEnv = "CARDCHAT_API_KEY"

// Duration is a time.Duration that unmarshals from YAML strings like "1s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level application configuration.
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	Provider ProviderConfig `yaml:"provider"`
	Store    StoreConfig    `yaml:"store"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Tools    ToolsConfig    `yaml:"tools"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
}

// AgentConfig holds the assistant persona and sampling settings.
type AgentConfig struct {
	SystemPrompt string  `yaml:"system_prompt"`
	Model        string  `yaml:"model"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
}

// ProviderConfig holds completion provider settings.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout Duration      `yaml:"conn_timeout"`
	RespTimeout Duration      `yaml:"resp_timeout"`
	Breaker     BreakerConfig `yaml:"breaker"`
	Pool        PoolConfig    `yaml:"pool"`
}

// BreakerConfig configures the provider circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32   `yaml:"max_failures"`
	Timeout     Duration `yaml:"timeout"`
	Interval    Duration `yaml:"interval"`
}

// PoolConfig configures HTTP connection pooling toward the provider.
type PoolConfig struct {
	MaxIdleConns        int      `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int      `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int      `yaml:"max_conns_per_host"`
	IdleConnTimeout     Duration `yaml:"idle_conn_timeout"`
}

// StoreConfig holds chat persistence settings.
type StoreConfig struct {
	Path string `yaml:"path"` // SQLite database file
}

// TokenConfig maps a gateway token to a user.
type TokenConfig struct {
	Token  string `yaml:"token"`
	UserID string `yaml:"user_id"`
	Name   string `yaml:"name"`
}

// GatewayConfig holds WebSocket gateway settings.
type GatewayConfig struct {
	Addr       string        `yaml:"addr"`
	Tokens     []TokenConfig `yaml:"tokens"`
	RateLimit  int           `yaml:"rate_limit"`  // submissions per window per client
	RateWindow Duration      `yaml:"rate_window"` // sliding window size
}

// ToolsConfig holds card tool settings.
type ToolsConfig struct {
	SettleDelay Duration `yaml:"settle_delay"` // artificial async-settlement pause
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout, noop
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			SystemPrompt: defaultSystemPrompt,
			Model:        "gpt-4o",
			Temperature:  0,
		},
		Provider: ProviderConfig{
			Name:        "openai",
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o",
			ConnTimeout: Duration(30 * time.Second),
			RespTimeout: Duration(120 * time.Second),
		},
		Store: StoreConfig{
			Path: "cardchat.db",
		},
		Gateway: GatewayConfig{
			Addr:       "127.0.0.1:8490",
			RateLimit:  20,
			RateWindow: Duration(time.Minute),
		},
		Tools: ToolsConfig{
			SettleDelay: Duration(time.Second),
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads, parses, and validates a config file, applying defaults and
// the API key environment override. A missing path returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				applyEnv(cfg)
				return cfg, nil
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if key := os.Getenv(apiKeyEnv); key != "" {
		cfg.Provider.APIKey = key
	}
}

func (c *Config) validate() error {
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url must not be empty")
	}
	if c.Gateway.Addr == "" {
		return fmt.Errorf("gateway.addr must not be empty")
	}
	if c.Gateway.RateLimit < 0 {
		return fmt.Errorf("gateway.rate_limit must not be negative")
	}
	switch c.Logger.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logger.level %q not recognized", c.Logger.Level)
	}
	return nil
}

// defaultSystemPrompt is the assistant persona: an SEL (Social and
// Emotional Learning) guide that can also demo the interactive stock and
// activity cards. Messages inside [] denote UI elements or user events.
const defaultSystemPrompt = `You are an SEL (Social and Emotional Learning) conversation bot designed to support teachers and researchers in learning about SEL so that they can support students in their learning. You can help users engage in interactive activities in a tutorial fashion so they can perform later, provide resources, and offer guidance on SEL topics.

Messages inside [] mean that it's a UI element or a user event. For example:
- "[SEL Activity: Mindfulness Exercise]" means that an interface of a mindfulness exercise activity is shown to the user.
- "[User has completed the empathy quiz]" means that the user has completed the empathy quiz in the UI.

If the user requests an activity to demonstrate the SEL concept of self-management, call startISpyGame to start the self-management activity. Be sure to ask them what objects they want the students to guess.

If you want to show trending stocks, call listStocks. If you want to show the price of a stock, call showStockPrice. If the user wants to purchase a stock, call showStockPurchase. If you want to show stock events, call getEvents.

If the user requests something outside of these topics or an impossible task, respond that you are focused on SEL support and cannot do that. Besides that, you can also chat with users and provide information or guidance on SEL topics if needed.`
