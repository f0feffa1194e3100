package command

import (
	"strings"
	"testing"
)

func TestMatchesPrefix(t *testing.T) {
	cases := []struct {
		input  string
		prefix string
		want   bool
	}{
		{`\c`, `\c`, true},
		{`  \c  `, `\c`, true},
		{`\compress`, `\c`, false},
		{`\compress`, `\compress`, true},
		{`\task list`, `\task`, true},
		{`\task list`, `\task list`, true},
		{`\task`, `\task list`, false},
		{`\tasks`, `\task`, false},
		{`hello \c`, `\c`, false},
		{``, `\c`, false},
		{`\c`, ``, false},
	}
	for _, tc := range cases {
		if got := MatchesPrefix(tc.input, tc.prefix); got != tc.want {
			t.Errorf("MatchesPrefix(%q, %q)=%v, want %v", tc.input, tc.prefix, got, tc.want)
		}
	}
}

func TestTrimPrefix(t *testing.T) {
	rest, ok := TrimPrefix(`  \file   notes.txt `, `\file`)
	if !ok || rest != "notes.txt" {
		t.Fatalf("rest=%q ok=%v", rest, ok)
	}
	rest, ok = TrimPrefix(`\task run build {"a": 1}`, `\task run`)
	if !ok || rest != `build {"a": 1}` {
		t.Fatalf("rest=%q ok=%v", rest, ok)
	}
	if _, ok := TrimPrefix(`\files x`, `\file`); ok {
		t.Fatal("expected no match for \\files")
	}
}

func TestConflictsWith(t *testing.T) {
	clear := []Option{{Template: `\c`, Prefix: `\c`}}
	compress := []Option{{Template: `\compress`, Prefix: `\compress`}}
	chatOpts := []Option{{Template: `<text>`}}
	reg := NewRegistry(
		Option{Template: "Enter", Description: "submit"},
		Option{Template: `\h`, Prefix: `\h`},
	)
	reg.Add(clear...)
	reg.Add(compress...)
	reg.Add(chatOpts...)

	if reg.ConflictsWith(`\c`, clear) {
		t.Fatal(`\c should not conflict with its own option`)
	}
	if !reg.ConflictsWith(`\compress`, clear) {
		t.Fatal(`clear should see \compress as someone else's`)
	}
	if reg.ConflictsWith(`\compress`, compress) {
		t.Fatal("compress owns its prefix")
	}
	if !reg.ConflictsWith(`\c`, chatOpts) {
		t.Fatal(`chat must not claim \c`)
	}
	if reg.ConflictsWith("hello there", chatOpts) {
		t.Fatal("free text conflicts with nothing")
	}
	if !reg.ConflictsWith(`\h`, chatOpts) {
		t.Fatal(`built-in \h is a registered prefix`)
	}
}

func TestHelpLinesAligned(t *testing.T) {
	reg := NewRegistry(
		Option{Template: `\q`, Description: "quit"},
		Option{Template: `\file <path>`, Description: "read a file", Example: `\file notes.txt`},
	)
	lines := reg.HelpLines()
	if len(lines) != 2 {
		t.Fatalf("lines=%v", lines)
	}
	if strings.Index(lines[0], ":") != strings.Index(lines[1], ":") {
		t.Fatalf("lines not aligned: %q", lines)
	}
	if !strings.HasSuffix(lines[1], `(e.g. \file notes.txt)`) {
		t.Fatalf("missing example: %q", lines[1])
	}
}
