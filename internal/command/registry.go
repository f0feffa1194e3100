package command

import (
	"fmt"
	"strings"
)

// Option 一条可在帮助中展示的命令
// Option is one command shown in help
type Option struct {
	// Template is the usage form, e.g. `\file <path>`.
	Template    string
	Description string
	// Prefix is the leading token(s) that select this option; empty for keys such as "Enter".
	Prefix  string
	Example string
}

// Registry 保存所有已注册的命令选项，按注册顺序
// Registry holds every registered option in registration order
type Registry struct {
	options []Option
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{}
	r.Add(opts...)
	return r
}

func (r *Registry) Add(opts ...Option) {
	r.options = append(r.options, opts...)
}

func (r *Registry) Options() []Option {
	out := make([]Option, len(r.options))
	copy(out, r.options)
	return out
}

// ConflictsWith 判断输入是否属于其它动作声明的前缀
// ConflictsWith reports whether input is claimed by a prefix that own does not declare
func (r *Registry) ConflictsWith(input string, own []Option) bool {
	if r == nil {
		return false
	}
	for _, opt := range r.options {
		if opt.Prefix == "" || !MatchesPrefix(input, opt.Prefix) {
			continue
		}
		if !declares(own, opt.Prefix) {
			return true
		}
	}
	return false
}

func declares(own []Option, prefix string) bool {
	for _, o := range own {
		if o.Prefix == prefix {
			return true
		}
	}
	return false
}

// MatchesPrefix 逐词比较，`\c` 不会匹配 `\compress`
// MatchesPrefix compares whole tokens, so `\c` never matches `\compress`
func MatchesPrefix(input, prefix string) bool {
	want := strings.Fields(prefix)
	if len(want) == 0 {
		return false
	}
	got := strings.Fields(input)
	if len(got) < len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// TrimPrefix removes the prefix tokens from input and returns the trimmed remainder.
func TrimPrefix(input, prefix string) (string, bool) {
	if !MatchesPrefix(input, prefix) {
		return "", false
	}
	rest := strings.TrimSpace(input)
	for _, tok := range strings.Fields(prefix) {
		rest = strings.TrimSpace(strings.TrimPrefix(rest, tok))
	}
	return rest, true
}

// HelpLines renders the options as aligned "template:  description" lines.
func (r *Registry) HelpLines() []string {
	width := 0
	for _, opt := range r.options {
		if n := len(opt.Template); n > width {
			width = n
		}
	}
	lines := make([]string, 0, len(r.options))
	for _, opt := range r.options {
		line := fmt.Sprintf("%-*s:  %s", width, opt.Template, opt.Description)
		if opt.Example != "" {
			line += fmt.Sprintf(" (e.g. %s)", opt.Example)
		}
		lines = append(lines, line)
	}
	return lines
}
