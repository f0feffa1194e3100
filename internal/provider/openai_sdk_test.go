package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"ask/internal/chat"
	"ask/internal/config"

	"github.com/google/go-cmp/cmp"
	openai "github.com/sashabaranov/go-openai"
)

func TestConvertMessages(t *testing.T) {
	messages := []chat.Message{
		chat.System("You are a helper"),
		chat.User("hello"),
		chat.Assistant("hi"),
	}

	got := convertMessages(messages)
	want := []openai.ChatCompletionMessage{
		{Role: "system", Content: "You are a helper"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("convertMessages mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenAIConverse(t *testing.T) {
	var gotReq struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotReq)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"pong"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	b := NewOpenAIBackend(OpenAIConfig{BaseURL: srv.URL, APIKey: "test"})
	msg, err := b.Converse(context.Background(), []chat.Message{chat.User("ping")}, "gpt-4o", 256)
	if err != nil {
		t.Fatal(err)
	}
	if msg != chat.Assistant("pong") {
		t.Fatalf("reply=%+v", msg)
	}
	if gotReq.Model != "gpt-4o" || gotReq.MaxTokens != 256 {
		t.Fatalf("request=%+v", gotReq)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Content != "ping" {
		t.Fatalf("request messages=%+v", gotReq.Messages)
	}
}

func TestOpenAIServerErrorBecomesSentinelReply(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
	}))
	defer srv.Close()

	b := NewOpenAIBackend(OpenAIConfig{BaseURL: srv.URL, APIKey: "test", MaxRetries: 1})
	msg, err := b.Converse(context.Background(), []chat.Message{chat.User("ping")}, "gpt-4o", 0)
	if err != nil {
		t.Fatalf("expected sentinel reply, got error %v", err)
	}
	if msg.Role != chat.RoleAssistant || msg.Content != UnavailableText(config.VendorOpenAI) {
		t.Fatalf("reply=%+v", msg)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls=%d, want 2 (one retry)", calls)
	}
}

func TestOpenAIClientErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	b := NewOpenAIBackend(OpenAIConfig{BaseURL: srv.URL, APIKey: "bad"})
	if _, err := b.Complete(context.Background(), "ping", "gpt-4o"); err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestLazyBuildsOnce(t *testing.T) {
	var builds int32
	lazy := NewLazy("fake", func() (Backend, error) {
		atomic.AddInt32(&builds, 1)
		return &echoBackend{}, nil
	})
	if atomic.LoadInt32(&builds) != 0 {
		t.Fatal("backend built before first use")
	}
	for i := 0; i < 3; i++ {
		if _, err := lazy.Complete(context.Background(), "x", "m"); err != nil {
			t.Fatal(err)
		}
	}
	if builds != 1 {
		t.Fatalf("builds=%d, want 1", builds)
	}
}

func TestSelectionDescribe(t *testing.T) {
	cfg := config.Default()
	cfg.Provider.OpenAIAPIKey = "sk"
	sel, err := Select(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Describe() != "GPT 4o" || sel.Model != "gpt-4o" {
		t.Fatalf("selection=%+v", sel)
	}
}

type echoBackend struct{}

func (e *echoBackend) Name() string { return "echo" }

func (e *echoBackend) Complete(_ context.Context, prompt string, _ string) (string, error) {
	return prompt, nil
}

func (e *echoBackend) Converse(_ context.Context, messages []chat.Message, _ string, _ int) (chat.Message, error) {
	return chat.Assistant(messages[len(messages)-1].Content), nil
}
