package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func writeLines(t *testing.T, n int) string {
	t.Helper()
	var lines []string
	for i := 1; i <= n; i++ {
		lines = append(lines, "line-"+strconv.Itoa(i))
	}
	target := filepath.Join(t.TempDir(), "lines.txt")
	if err := os.WriteFile(target, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return target
}

func TestReadText(t *testing.T) {
	dir := t.TempDir()
	text := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(text, []byte("héllo\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bin := filepath.Join(dir, "blob.bin")
	if err := os.WriteFile(bin, []byte{0xff, 0xfe, 0x00}, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadText(text)
	if err != nil || got != "héllo\n" {
		t.Fatalf("ReadText=%q, %v", got, err)
	}

	tests := []struct {
		path string
		want error
	}{
		{filepath.Join(dir, "missing.txt"), ErrFileNotFound},
		{dir, ErrFileUnreadable},
		{bin, ErrFileUnreadable},
	}
	for _, tc := range tests {
		if _, err := ReadText(tc.path); !errors.Is(err, tc.want) {
			t.Errorf("ReadText(%s) err=%v, want %v", tc.path, err, tc.want)
		}
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	if got := ExpandHome("~/notes.txt"); got != "/home/tester/notes.txt" {
		t.Fatalf("got %q", got)
	}
	if got := ExpandHome("/etc/hosts"); got != "/etc/hosts" {
		t.Fatalf("got %q", got)
	}
}

func TestReadFileToolPaging(t *testing.T) {
	target := writeLines(t, 200)
	tests := []struct {
		name     string
		input    map[string]any
		first    string
		count    int
		start    int
		end      int
		wantMore bool
	}{
		{"default limit", map[string]any{"path": target}, "line-1", 200, 1, 200, false},
		{"offset and limit", map[string]any{"path": target, "offset": float64(51), "limit": float64(50)}, "line-51", 50, 51, 100, true},
		{"tail", map[string]any{"path": target, "offset": -1, "limit": 10}, "line-191", 10, 191, 200, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := ReadFileTool{}.Call(context.Background(), tc.input)
			if err != nil {
				t.Fatal(err)
			}
			res := out.(map[string]any)
			lines := strings.Split(res["content"].(string), "\n")
			if len(lines) != tc.count || lines[0] != tc.first {
				t.Fatalf("lines=%d first=%q", len(lines), lines[0])
			}
			if res["start_line"] != tc.start || res["end_line"] != tc.end || res["has_more"] != tc.wantMore {
				t.Fatalf("result=%v", res)
			}
		})
	}
}

func TestReadFileToolBeyondEOF(t *testing.T) {
	target := writeLines(t, 1)
	out, err := ReadFileTool{}.Call(context.Background(), map[string]any{"path": target, "offset": 10})
	if err != nil {
		t.Fatal(err)
	}
	res := out.(map[string]any)
	if res["content"] != "" || res["has_more"] != false {
		t.Fatalf("result=%v", res)
	}
	if _, err := (ReadFileTool{}).Call(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error without path")
	}
}
