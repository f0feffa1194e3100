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

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend 使用 go-openai SDK 的 Backend 实现
// OpenAIBackend implements Backend using the go-openai SDK
type OpenAIBackend struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// OpenAIConfig SDK 后端配置
// OpenAIConfig is the SDK backend configuration
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	TimeoutMS  int
	MaxRetries int
}

// NewOpenAIBackend 创建基于 SDK 的后端
// NewOpenAIBackend creates an SDK-based backend
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		sdkConfig.BaseURL = base
	}

	httpClient := &http.Client{}
	if cfg.TimeoutMS > 0 {
		httpClient.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	sdkConfig.HTTPClient = httpClient

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &OpenAIBackend{
		client: openai.NewClientWithConfig(sdkConfig),
		cfg:    cfg,
	}
}

func (b *OpenAIBackend) Name() string {
	return config.VendorOpenAI
}

func (b *OpenAIBackend) Complete(ctx context.Context, prompt string, model string) (string, error) {
	text, err := b.create(ctx, []chat.Message{chat.User(prompt)}, model, config.DefaultMaxTokens)
	if err != nil {
		return degrade(b.Name(), err)
	}
	return text, nil
}

func (b *OpenAIBackend) Converse(ctx context.Context, messages []chat.Message, model string, maxTokens int) (chat.Message, error) {
	text, err := b.create(ctx, messages, model, maxTokens)
	if err != nil {
		text, err = degrade(b.Name(), err)
		if err != nil {
			return chat.Message{}, err
		}
	}
	return chat.Assistant(text), nil
}

func (b *OpenAIBackend) create(ctx context.Context, messages []chat.Message, model string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = config.DefaultMaxTokens
	}
	req := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  convertMessages(messages),
		MaxTokens: maxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= b.cfg.MaxRetries; attempt++ {
		if err := backoff(ctx, attempt); err != nil {
			return "", err
		}
		resp, err := b.client.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("openai: empty response")
			}
			return resp.Choices[0].Message.Content, nil
		}
		lastErr = err

		// 不可重试的错误 / Non-retryable errors
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		if !retryableOpenAI(err) {
			return "", fmt.Errorf("openai: %w", err)
		}
	}
	if isServerErrorOpenAI(lastErr) {
		return "", fmt.Errorf("openai: %w: %v", ErrUnavailable, lastErr)
	}
	return "", fmt.Errorf("openai request failed after %d retries: %w", b.cfg.MaxRetries, lastErr)
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func isServerErrorOpenAI(err error) bool {
	return openAIStatus(err) >= http.StatusInternalServerError
}

func retryableOpenAI(err error) bool {
	status := openAIStatus(err)
	return status == 0 || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// --- Message Conversion ---

func convertMessages(messages []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}
