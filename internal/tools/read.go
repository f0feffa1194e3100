package tools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

var (
	ErrFileNotFound   = errors.New("file not found")
	ErrFileUnreadable = errors.New("unable to read file")
)

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	path = strings.TrimSpace(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// ReadText 读取本地文件文本；PDF 会被提取为纯文本
// ReadText returns the text of a local file; PDFs are converted to plain text
func ReadText(path string) (string, error) {
	resolved := ExpandHome(path)
	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return "", fmt.Errorf("%w: %s: %v", ErrFileUnreadable, path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrFileUnreadable, path)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrFileUnreadable, path, err)
	}
	if bytes.HasPrefix(data, []byte("%PDF")) || strings.EqualFold(filepath.Ext(resolved), ".pdf") {
		text, err := extractTextFromPDF(data)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrFileUnreadable, path, err)
		}
		return text, nil
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not a text file", ErrFileUnreadable, path)
	}
	return string(data), nil
}

// ReadFileTool lets task scripts read a window of lines from a local file.
type ReadFileTool struct{}

func (ReadFileTool) Definition() Definition {
	return Definition{
		Name:        "read_file",
		Description: "Read lines from a local text file",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
				"offset": map[string]any{
					"type":        "integer",
					"description": "Line offset (1-based). Negative reads the last `limit` lines.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Max number of lines to read. Defaults to 200 and is capped at 2000.",
				},
			},
			"required": []string{"path"},
		},
		OutputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content":    map[string]any{"type": "string"},
				"start_line": map[string]any{"type": "integer"},
				"end_line":   map[string]any{"type": "integer"},
				"has_more":   map[string]any{"type": "boolean"},
			},
		},
	}
}

func (ReadFileTool) Call(_ context.Context, input map[string]any) (any, error) {
	path, _ := input["path"].(string)
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("read_file: path is required")
	}
	return readLines(ExpandHome(path), intArg(input["offset"]), intArg(input["limit"]))
}

func intArg(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func readLines(path string, offset, limit int) (map[string]any, error) {
	const (
		defaultLimit = 200
		maxLimit     = 2000
	)
	// any negative offset means tail mode: the last `limit` lines
	isTail := offset < 0
	if !isTail && offset <= 0 {
		offset = 1
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrFileUnreadable, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo, startLine, endLine := 0, 0, 0
	var lines []string
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		if isTail {
			if len(lines) == limit {
				lines = lines[1:]
			}
			lines = append(lines, text)
			continue
		}
		if lineNo < offset || len(lines) >= limit {
			continue
		}
		if startLine == 0 {
			startLine = lineNo
		}
		lines = append(lines, text)
		endLine = lineNo
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileUnreadable, err)
	}

	var hasMore bool
	if isTail {
		endLine = lineNo
		if len(lines) > 0 {
			startLine = endLine - len(lines) + 1
		}
		hasMore = startLine > 1
	} else {
		hasMore = endLine != 0 && lineNo > endLine
	}
	return map[string]any{
		"content":    strings.Join(lines, "\n"),
		"start_line": startLine,
		"end_line":   endLine,
		"has_more":   hasMore,
	}, nil
}
