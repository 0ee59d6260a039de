package llm

import (
	"context"
	"fmt"

	"github.com/agentive-ai/fleet/internal/types"
)

// Role identifies who authored a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn in a completion request.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a completion request against a provider.
type Request struct {
	Model       string        `json:"model,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// Usage reports token consumption for a completion, when the provider
// supplies it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Response is the provider's completion output.
type Response struct {
	Content    string `json:"content"`
	Model      string `json:"model,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
	Usage      Usage  `json:"usage"`
}

// Provider is the unified abstraction over language-model services.
type Provider interface {
	// Name returns the provider name, e.g. "openai", "anthropic", "ollama".
	Name() string

	// Complete sends a completion request and blocks for the full response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ProviderConfig carries the settings needed to construct a provider.
type ProviderConfig struct {
	Name         string  `json:"name" yaml:"name" mapstructure:"name"`
	APIKey       string  `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL      string  `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`
	DefaultModel string  `json:"default_model,omitempty" yaml:"default_model,omitempty" mapstructure:"default_model"`
	Temperature  float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens    int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`

	// RequestsPerSecond enables the rate-limited wrapper when positive.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty" mapstructure:"requests_per_second"`
}

// NewProvider constructs a provider from its configuration. A positive
// RequestsPerSecond wraps the provider with a client-side rate limiter.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Name {
	case "openai":
		p, err = newOpenAIProvider(cfg)
	case "anthropic":
		p, err = newAnthropicProvider(cfg)
	case "ollama":
		p, err = newOllamaProvider(cfg)
	default:
		return nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("unknown llm provider %q", cfg.Name))
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerSecond > 0 {
		p = NewRateLimited(p, cfg.RequestsPerSecond)
	}
	return p, nil
}
