package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ask/internal/chat"
	"ask/internal/config"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicBackend 使用 anthropic-sdk-go 的 Backend 实现
// AnthropicBackend implements Backend using anthropic-sdk-go
type AnthropicBackend struct {
	client anthropic.Client
}

type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

func NewAnthropicBackend(cfg AnthropicConfig) *AnthropicBackend {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &AnthropicBackend{client: anthropic.NewClient(opts...)}
}

func (b *AnthropicBackend) Name() string {
	return config.VendorAnthropic
}

func (b *AnthropicBackend) Complete(ctx context.Context, prompt string, model string) (string, error) {
	text, err := b.create(ctx, []chat.Message{chat.User(prompt)}, model, config.DefaultMaxTokens)
	if err != nil {
		return degrade(b.Name(), err)
	}
	return text, nil
}

func (b *AnthropicBackend) Converse(ctx context.Context, messages []chat.Message, model string, maxTokens int) (chat.Message, error) {
	text, err := b.create(ctx, messages, model, maxTokens)
	if err != nil {
		text, err = degrade(b.Name(), err)
		if err != nil {
			return chat.Message{}, err
		}
	}
	return chat.Assistant(text), nil
}

func (b *AnthropicBackend) create(ctx context.Context, messages []chat.Message, model string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = config.DefaultMaxTokens
	}
	msg, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  convertAnthropicMessages(messages),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode >= http.StatusInternalServerError {
			return "", fmt.Errorf("anthropic: %w: %v", ErrUnavailable, err)
		}
		return "", fmt.Errorf("anthropic: %w", err)
	}
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic: response has no text content")
}

// 系统消息以用户消息发送
// System messages are sent as user messages
func convertAnthropicMessages(messages []chat.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == chat.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
			continue
		}
		out = append(out, anthropic.NewUserMessage(block))
	}
	return out
}
