package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ask/internal/chat"
	"ask/internal/config"
)

func TestAnthropicConverseSendsSystemAsUser(t *testing.T) {
	var gotReq struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotReq)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-20241022","content":[{"type":"text","text":"pong"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":1}}`)
	}))
	defer srv.Close()

	b := NewAnthropicBackend(AnthropicConfig{APIKey: "test", BaseURL: srv.URL})
	msg, err := b.Converse(context.Background(), []chat.Message{
		chat.System("be brief"),
		chat.User("ping"),
		chat.Assistant("..."),
		chat.User("again"),
	}, "claude-3-5-haiku-20241022", 8192)
	if err != nil {
		t.Fatal(err)
	}
	if msg != chat.Assistant("pong") {
		t.Fatalf("reply=%+v", msg)
	}
	if gotReq.MaxTokens != 8192 {
		t.Fatalf("max_tokens=%d", gotReq.MaxTokens)
	}
	roles := make([]string, 0, len(gotReq.Messages))
	for _, m := range gotReq.Messages {
		roles = append(roles, m.Role)
	}
	if strings.Join(roles, ",") != "user,user,assistant,user" {
		t.Fatalf("roles=%v", roles)
	}
}

func TestAnthropicServerErrorBecomesSentinelReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
	}))
	defer srv.Close()

	b := NewAnthropicBackend(AnthropicConfig{APIKey: "test", BaseURL: srv.URL})
	text, err := b.Complete(context.Background(), "ping", "claude-3-5-haiku-20241022")
	if err != nil {
		t.Fatalf("expected sentinel reply, got %v", err)
	}
	if text != UnavailableText(config.VendorAnthropic) {
		t.Fatalf("text=%q", text)
	}
}
