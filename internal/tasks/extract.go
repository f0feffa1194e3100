package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoMetaBlock   = errors.New("no task metadata JSON block found")
	ErrNoScriptBlock = errors.New("no Go script block found")
)

type fence struct {
	lang string
	body string
}

// fences returns the fenced code blocks of a markdown reply in order.
func fences(text string) []fence {
	var out []fence
	rest := text
	for {
		open := strings.Index(rest, "```")
		if open < 0 {
			return out
		}
		rest = rest[open+3:]
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			return out
		}
		lang := strings.ToLower(strings.TrimSpace(rest[:nl]))
		rest = rest[nl+1:]
		end := strings.Index(rest, "```")
		if end < 0 {
			return out
		}
		out = append(out, fence{lang: lang, body: strings.TrimSpace(rest[:end])})
		rest = rest[end+3:]
	}
}

// ExtractMeta pulls the proposed task metadata out of a model reply. The last
// ```json block wins since the model repeats its proposal in every answer;
// an untagged block holding a JSON object is accepted as a fallback.
func ExtractMeta(text string) (Meta, error) {
	blocks := fences(text)
	var candidates []string
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].lang == "json" {
			candidates = append(candidates, blocks[i].body)
		}
	}
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].lang == "" && strings.HasPrefix(blocks[i].body, "{") {
			candidates = append(candidates, blocks[i].body)
		}
	}

	var lastErr error
	for _, c := range candidates {
		var m Meta
		if err := json.Unmarshal([]byte(c), &m); err != nil {
			lastErr = err
			continue
		}
		if m.Slug == "" && m.Name == "" {
			continue
		}
		m.normalize()
		return m, nil
	}
	if lastErr != nil {
		return Meta{}, fmt.Errorf("%w: %v", ErrNoMetaBlock, lastErr)
	}
	return Meta{}, ErrNoMetaBlock
}

// ExtractScript returns the last ```go block of a reply.
func ExtractScript(text string) (string, error) {
	blocks := fences(text)
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].lang == "go" || blocks[i].lang == "golang" {
			return blocks[i].body + "\n", nil
		}
	}
	return "", ErrNoScriptBlock
}
