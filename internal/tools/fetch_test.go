package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetcherFetchText(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/page":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><head><title>t</title><style>.x{}</style></head><body><h1>Test   Page</h1><script>var a=1;</script><p>Body text</p></body></html>`))
		case "/plain":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("just text"))
		case "/missing":
			http.NotFound(w, r)
		case "/binary":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 0x50})
		}
	}))
	defer ts.Close()

	f := NewFetcher(FetchConfig{TimeoutSec: 5, UserAgent: "ask-test"})

	t.Run("html is reduced to visible text", func(t *testing.T) {
		text, err := f.FetchText(context.Background(), ts.URL+"/page")
		if err != nil {
			t.Fatal(err)
		}
		if text != "Test Page\nBody text" {
			t.Fatalf("text=%q", text)
		}
		if gotUA != "ask-test" {
			t.Fatalf("user agent=%q", gotUA)
		}
	})

	t.Run("plain text is verbatim", func(t *testing.T) {
		text, err := f.FetchText(context.Background(), ts.URL+"/plain")
		if err != nil || text != "just text" {
			t.Fatalf("text=%q err=%v", text, err)
		}
	})

	t.Run("scheme is added when missing", func(t *testing.T) {
		host := strings.TrimPrefix(ts.URL, "http://")
		text, err := f.FetchText(context.Background(), host+"/plain")
		if err != nil || text != "just text" {
			t.Fatalf("text=%q err=%v", text, err)
		}
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		_, err := f.FetchText(context.Background(), ts.URL+"/missing")
		if !errors.Is(err, ErrHTTPStatus) {
			t.Fatalf("err=%v", err)
		}
	})

	t.Run("binary content is rejected", func(t *testing.T) {
		if _, err := f.FetchText(context.Background(), ts.URL+"/binary"); err == nil {
			t.Fatal("expected error for image content")
		}
	})
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"example.com":          "http://example.com",
		" https://example.com": "https://example.com",
		"http://a.b/c":         "http://a.b/c",
	}
	for in, want := range cases {
		if got := NormalizeURL(in); got != want {
			t.Fatalf("NormalizeURL(%q)=%q, want %q", in, got, want)
		}
	}
}
