package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ask/internal/chat"
	"ask/internal/config"
)

// ErrUnavailable 表示厂商侧内部错误（5xx / overloaded）
// ErrUnavailable marks a vendor-side internal failure (5xx / overloaded)
var ErrUnavailable = errors.New("backend unavailable")

// Backend 语言模型后端：单轮补全与多轮对话
// Backend is the language-model backend: single-turn completion and multi-turn conversation
type Backend interface {
	// Complete 发送单个用户提示并返回文本
	// Complete sends a single user prompt and returns the reply text
	Complete(ctx context.Context, prompt string, model string) (string, error)

	// Converse 发送完整消息列表并返回助手消息
	// Converse sends the full message list and returns the assistant message
	Converse(ctx context.Context, messages []chat.Message, model string, maxTokens int) (chat.Message, error)

	// Name 返回厂商名称
	// Name returns the vendor name
	Name() string
}

const (
	unavailablePrefix = "Request failed - "
	unavailableSuffix = " is unavailable"
)

// UnavailableText is the reply substituted for a vendor-side internal failure.
func UnavailableText(vendor string) string {
	return unavailablePrefix + displayVendor(vendor) + unavailableSuffix
}

// IsUnavailableText reports whether text is a reply produced by UnavailableText.
func IsUnavailableText(text string) bool {
	text = strings.TrimSpace(text)
	return strings.HasPrefix(text, unavailablePrefix) && strings.HasSuffix(text, unavailableSuffix)
}

// degrade 将 ErrUnavailable 转为哨兵回复，其它错误原样返回
// degrade turns ErrUnavailable into the sentinel reply; other errors pass through
func degrade(vendor string, err error) (string, error) {
	if errors.Is(err, ErrUnavailable) {
		return UnavailableText(vendor), nil
	}
	return "", err
}

func displayVendor(vendor string) string {
	switch vendor {
	case config.VendorAnthropic:
		return "Anthropic"
	case config.VendorOpenAI:
		return "OpenAI"
	default:
		return vendor
	}
}

// Selection 描述当前会话使用的厂商与模型
// Selection describes the vendor and model a session talks to
type Selection struct {
	Vendor string
	Alias  string
	Model  string
}

// Describe returns e.g. "Claude haiku".
func (s Selection) Describe() string {
	name := s.Vendor
	switch s.Vendor {
	case config.VendorAnthropic:
		name = "Claude"
	case config.VendorOpenAI:
		name = "GPT"
	}
	return name + " " + s.Alias
}

// Select resolves vendor and model from configuration.
func Select(cfg config.Config) (Selection, error) {
	vendor, err := cfg.ResolveVendor()
	if err != nil {
		return Selection{}, err
	}
	alias, model := cfg.ModelFor(vendor)
	return Selection{Vendor: vendor, Alias: alias, Model: model}, nil
}

// New 返回按需构建的后端；客户端在第一次调用时创建
// New returns a backend that builds its client on first use
func New(cfg config.Config, sel Selection) Backend {
	timeout := time.Duration(cfg.Provider.TimeoutMS) * time.Millisecond
	key := cfg.APIKeyFor(sel.Vendor)
	return NewLazy(sel.Vendor, func() (Backend, error) {
		switch sel.Vendor {
		case config.VendorAnthropic:
			return NewAnthropicBackend(AnthropicConfig{
				APIKey:     key,
				BaseURL:    cfg.Provider.BaseURL,
				Timeout:    timeout,
				MaxRetries: cfg.Provider.MaxRetries,
			}), nil
		case config.VendorOpenAI:
			return NewOpenAIBackend(OpenAIConfig{
				APIKey:     key,
				BaseURL:    cfg.Provider.BaseURL,
				TimeoutMS:  cfg.Provider.TimeoutMS,
				MaxRetries: cfg.Provider.MaxRetries,
			}), nil
		default:
			return nil, fmt.Errorf("unknown vendor %q", sel.Vendor)
		}
	})
}

// Lazy 进程级后端：首次使用时构建，之后复用，不做销毁
// Lazy is a process-scoped backend: built on first use, reused afterwards, never torn down
type Lazy struct {
	name  string
	build func() (Backend, error)

	once    sync.Once
	backend Backend
	err     error
}

func NewLazy(name string, build func() (Backend, error)) *Lazy {
	return &Lazy{name: name, build: build}
}

func (l *Lazy) get() (Backend, error) {
	l.once.Do(func() {
		l.backend, l.err = l.build()
	})
	return l.backend, l.err
}

func (l *Lazy) Name() string {
	return l.name
}

func (l *Lazy) Complete(ctx context.Context, prompt string, model string) (string, error) {
	b, err := l.get()
	if err != nil {
		return "", err
	}
	return b.Complete(ctx, prompt, model)
}

func (l *Lazy) Converse(ctx context.Context, messages []chat.Message, model string, maxTokens int) (chat.Message, error) {
	b, err := l.get()
	if err != nil {
		return chat.Message{}, err
	}
	return b.Converse(ctx, messages, model, maxTokens)
}

func backoff(ctx context.Context, attempt int) error {
	if attempt <= 0 {
		return nil
	}
	wait := time.Duration(150*(1<<(attempt-1))) * time.Millisecond
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
