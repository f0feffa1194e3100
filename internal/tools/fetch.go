package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ErrHTTPStatus is wrapped when the server answers with a non-2xx status.
var ErrHTTPStatus = errors.New("unexpected http status")

type FetchConfig struct {
	TimeoutSec int
	MaxSizeKB  int
	UserAgent  string
}

// Fetcher 下载网页或 PDF 并提取可读文本
// Fetcher downloads a page or PDF and extracts its readable text
type Fetcher struct {
	cfg    FetchConfig
	client *http.Client
}

func NewFetcher(cfg FetchConfig) *Fetcher {
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = 30
	}
	if cfg.MaxSizeKB <= 0 {
		cfg.MaxSizeKB = 5 * 1024
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
	}
}

// NormalizeURL adds http:// when the address has no scheme.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "http://" + raw
}

func (f *Fetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	target := NormalizeURL(rawURL)
	if _, err := url.Parse(target); err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %d from %s", ErrHTTPStatus, resp.StatusCode, target)
	}

	maxSizeBytes := f.cfg.MaxSizeKB * 1024
	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxSizeBytes)+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) > maxSizeBytes {
		return "", fmt.Errorf("response exceeds maximum size of %d bytes", maxSizeBytes)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case strings.EqualFold(mediaType, "application/pdf"):
		text, err := extractTextFromPDF(data)
		if err != nil {
			return "", err
		}
		return text, nil
	case isHTMLMediaType(mediaType):
		return extractTextFromHTML(string(data)), nil
	case isTextLikeMediaType(mediaType):
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported content type %q", mediaType)
	}
}

func isHTMLMediaType(mediaType string) bool {
	if mediaType == "" {
		return false
	}
	switch strings.ToLower(mediaType) {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return strings.HasSuffix(strings.ToLower(mediaType), "+html")
	}
}

// isTextLikeMediaType 判定一个 mediaType 是否“文本型”
// isTextLikeMediaType reports whether a media type can be decoded as text
func isTextLikeMediaType(mediaType string) bool {
	if strings.TrimSpace(mediaType) == "" {
		return true
	}
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if strings.HasPrefix(mt, "text/") {
		return true
	}
	switch mt {
	case "application/json",
		"application/xml",
		"application/javascript":
		return true
	}
	return strings.HasSuffix(mt, "+json") || strings.HasSuffix(mt, "+xml")
}

func extractTextFromHTML(htmlStr string) string {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return htmlStr
	}

	var b strings.Builder
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, skip bool) {
		if n.Type == html.ElementNode && isIgnoredHTMLTag(n.Data) {
			skip = true
		}
		if n.Type == html.TextNode && !skip {
			text := strings.Join(strings.Fields(n.Data), " ")
			if text != "" {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skip)
		}
	}

	walk(doc, false)
	return b.String()
}

func isIgnoredHTMLTag(tag string) bool {
	switch strings.ToLower(tag) {
	case "script", "style", "noscript", "iframe", "object", "embed", "template", "svg", "head":
		return true
	default:
		return false
	}
}
