package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

type Registry struct {
	tools map[string]Tool
}

func NewRegistry(ts ...Tool) *Registry {
	m := make(map[string]Tool, len(ts))
	for _, t := range ts {
		m[t.Definition().Name] = t
	}
	return &Registry{tools: m}
}

// NewDefaultRegistry returns the tools available to every task.
func NewDefaultRegistry(fetcher *Fetcher) *Registry {
	return NewRegistry(NewWebTool(fetcher), ReadFileTool{}, SystemInfoTool{})
}

func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.tools))
	for _, name := range r.Names() {
		out = append(out, r.tools[name].Definition())
	}
	return out
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Funcs binds every tool to ctx, in the form task scripts receive them.
func (r *Registry) Funcs(ctx context.Context) map[string]Func {
	out := make(map[string]Func, len(r.tools))
	for name, t := range r.tools {
		t := t
		out[name] = func(input map[string]any) (any, error) {
			return t.Call(ctx, input)
		}
	}
	return out
}

// WebTool fetches the readable text of a URL; unreachable pages yield nil.
type WebTool struct {
	fetcher *Fetcher
}

func NewWebTool(fetcher *Fetcher) *WebTool {
	return &WebTool{fetcher: fetcher}
}

func (t *WebTool) Definition() Definition {
	return Definition{
		Name:        "web",
		Description: "Fetch the text content of a web page or PDF",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string"},
			},
			"required": []string{"url"},
		},
		OutputSchema: map[string]any{
			"type": []string{"string", "null"},
		},
	}
}

func (t *WebTool) Call(ctx context.Context, input map[string]any) (any, error) {
	rawURL, _ := input["url"].(string)
	if rawURL == "" {
		return nil, errors.New("web: url is required")
	}
	text, err := t.fetcher.FetchText(ctx, rawURL)
	if err != nil {
		if errors.Is(err, ErrHTTPStatus) {
			return nil, nil
		}
		return nil, fmt.Errorf("web: %w", err)
	}
	return text, nil
}

// SystemInfoTool reports the local system summary.
type SystemInfoTool struct{}

func (SystemInfoTool) Definition() Definition {
	return Definition{
		Name:         "system_info",
		Description:  "Describe the local operating system, CPU, memory and disk",
		InputSchema:  map[string]any{"type": "object", "properties": map[string]any{}},
		OutputSchema: map[string]any{"type": "string"},
	}
}

func (SystemInfoTool) Call(ctx context.Context, _ map[string]any) (any, error) {
	return SystemInfo(ctx), nil
}
