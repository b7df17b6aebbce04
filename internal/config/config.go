package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/chat-gateway/backend/internal/telemetry"
)

// Config aggregates every setting of the gateway.
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Session   SessionConfig
	Log       telemetry.LogConfig
	Telemetry telemetry.Config
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	addr, err := listenAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Addr is derived from Port.
	Addr string
}

// listenAddr turns PORT into a listen address.
func listenAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "3000"
	}

	if strings.Contains(port, ":") {
		// ":3000" and "127.0.0.1:3000" are passed through untouched.
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// AIConfig describes the model provider.
type AIConfig struct {
	APIKey          string        `env:"ARK_API_KEY"`
	AccessKey       string        `env:"ARK_ACCESS_KEY"`
	SecretKey       string        `env:"ARK_SECRET_KEY"`
	Model           string        `env:"ARK_MODEL"`
	BaseURL         string        `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region          string        `env:"ARK_REGION" envDefault:"cn-beijing"`
	MaxOutputTokens int           `env:"AI_MAX_OUTPUT_TOKENS" envDefault:"1000"`
	Temperature     float32       `env:"AI_TEMPERATURE" envDefault:"0.9"`
	Timeout         time.Duration `env:"AI_TIMEOUT" envDefault:"60s"`
}

// Enabled reports whether a model and a credential were supplied.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates the Ark chat model described by the configuration.
// Generation parameters are applied per call, not here.
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, errors.New("ark credentials or model missing: set ARK_MODEL and ARK_API_KEY or ARK_ACCESS_KEY/ARK_SECRET_KEY")
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
	})
}

// SessionConfig controls conversation retention.
type SessionConfig struct {
	TTL           time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1h"`
	MaxEntries    int           `env:"SESSION_MAX_ENTRIES" envDefault:"10000"`
}

func (c *Config) validate() error {
	switch {
	case c.Server.MaxBodyBytes <= 0:
		return fmt.Errorf("invalid MAX_BODY_BYTES value: %d", c.Server.MaxBodyBytes)
	case c.AI.MaxOutputTokens <= 0:
		return fmt.Errorf("invalid AI_MAX_OUTPUT_TOKENS value: %d", c.AI.MaxOutputTokens)
	case c.AI.Temperature < 0:
		return fmt.Errorf("invalid AI_TEMPERATURE value: %v", c.AI.Temperature)
	case c.AI.Timeout <= 0:
		return fmt.Errorf("invalid AI_TIMEOUT value: %s", c.AI.Timeout)
	case c.Session.TTL <= 0:
		return fmt.Errorf("invalid SESSION_TTL value: %s", c.Session.TTL)
	case c.Session.SweepInterval <= 0:
		return fmt.Errorf("invalid SESSION_SWEEP_INTERVAL value: %s", c.Session.SweepInterval)
	case c.Session.MaxEntries < 0:
		return fmt.Errorf("invalid SESSION_MAX_ENTRIES value: %d", c.Session.MaxEntries)
	}
	return nil
}
