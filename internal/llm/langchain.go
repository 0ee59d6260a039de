package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/agentive-ai/fleet/internal/types"
)

// langchainProvider adapts a langchaingo model to the Provider interface.
type langchainProvider struct {
	name   string
	model  llms.Model
	config ProviderConfig
}

var _ Provider = (*langchainProvider)(nil)

func (p *langchainProvider) Name() string {
	return p.name
}

func (p *langchainProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := toLangchainMessages(req.Messages)

	opts := []llms.CallOption{}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	} else if p.config.DefaultModel != "" {
		opts = append(opts, llms.WithModel(p.config.DefaultModel))
	}
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	} else if p.config.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(p.config.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	} else if p.config.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(p.config.MaxTokens))
	}

	resp, err := p.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, types.WrapError(types.LLM_REQUEST_FAILED,
			fmt.Sprintf("%s completion failed", p.name), err)
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewError(types.LLM_RESPONSE_INVALID,
			fmt.Sprintf("%s returned no choices", p.name))
	}

	choice := resp.Choices[0]
	return &Response{
		Content:    choice.Content,
		Model:      req.Model,
		StopReason: choice.StopReason,
	}, nil
}

func toLangchainMessages(messages []ChatMessage) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		role := schema.ChatMessageTypeHuman
		switch msg.Role {
		case RoleSystem:
			role = schema.ChatMessageTypeSystem
		case RoleAssistant:
			role = schema.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, msg.Content))
	}
	return out
}

func newOpenAIProvider(cfg ProviderConfig) (Provider, error) {
	opts := []openai.Option{}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.DefaultModel != "" {
		opts = append(opts, openai.WithModel(cfg.DefaultModel))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, types.WrapError(types.LLM_REQUEST_FAILED, "failed to create openai client", err)
	}
	return &langchainProvider{name: "openai", model: client, config: cfg}, nil
}

func newAnthropicProvider(cfg ProviderConfig) (Provider, error) {
	opts := []anthropic.Option{}
	if cfg.APIKey != "" {
		opts = append(opts, anthropic.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	if cfg.DefaultModel != "" {
		opts = append(opts, anthropic.WithModel(cfg.DefaultModel))
	}

	client, err := anthropic.New(opts...)
	if err != nil {
		return nil, types.WrapError(types.LLM_REQUEST_FAILED, "failed to create anthropic client", err)
	}
	return &langchainProvider{name: "anthropic", model: client, config: cfg}, nil
}

func newOllamaProvider(cfg ProviderConfig) (Provider, error) {
	serverURL := cfg.BaseURL
	if serverURL == "" {
		serverURL = "http://localhost:11434"
	}

	opts := []ollama.Option{ollama.WithServerURL(serverURL)}
	if cfg.DefaultModel != "" {
		opts = append(opts, ollama.WithModel(cfg.DefaultModel))
	}

	client, err := ollama.New(opts...)
	if err != nil {
		return nil, types.WrapError(types.LLM_REQUEST_FAILED, "failed to create ollama client", err)
	}
	return &langchainProvider{name: "ollama", model: client, config: cfg}, nil
}
