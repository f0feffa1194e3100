package actions

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"ask/internal/chat"
	"ask/internal/command"
	"ask/internal/config"
	"ask/internal/provider"
	"ask/internal/render"
	"ask/internal/session"
	"ask/internal/tools"
)

// Action 一个可调度的会话动作
// Action is one dispatchable session behavior
type Action interface {
	Name() string
	// Options are the commands this action declares; their prefixes are reserved for it.
	Options() []command.Option
	Match(input string, st *session.State, reg *command.Registry) bool
	Run(ctx context.Context, input string, st *session.State) error
}

// Prompter 从用户读取一行输入
// Prompter reads one line of user input
type Prompter interface {
	ReadLine(prompt string) (string, error)
}

// CommandRunner executes one shell command, locally or on a remote host.
type CommandRunner interface {
	Run(ctx context.Context, command string) (tools.ExecResult, error)
}

// Env 动作共享的协作者
// Env bundles the collaborators shared by actions
type Env struct {
	Backend   provider.Backend
	Model     string
	ModelName string
	MaxTokens int
	Console   *render.Console
	Prompter  Prompter
	Logger    *zap.Logger
	// SystemInfo describes the local machine; defaults to tools.SystemInfo.
	SystemInfo func(ctx context.Context) string

	sysOnce sync.Once
	sysInfo string
}

// systemInfo is collected once per session.
func (e *Env) systemInfo(ctx context.Context) string {
	e.sysOnce.Do(func() {
		collect := e.SystemInfo
		if collect == nil {
			collect = tools.SystemInfo
		}
		e.sysInfo = collect(ctx)
	})
	return e.sysInfo
}

func (e *Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Env) maxTokens() int {
	if e.MaxTokens > 0 {
		return e.MaxTokens
	}
	return config.DefaultMaxTokens
}

// converse sends messages to the backend behind a transient status line.
func (e *Env) converse(ctx context.Context, status string, messages []chat.Message, maxTokens int) (chat.Message, error) {
	stop := e.Console.Status(status + " " + e.ModelName + "...")
	defer stop()
	if maxTokens <= 0 {
		maxTokens = e.maxTokens()
	}
	msg, err := e.Backend.Converse(ctx, messages, e.Model, maxTokens)
	if err != nil {
		return chat.Message{}, err
	}
	msg.Role = chat.RoleAssistant
	return msg, nil
}

func (e *Env) complete(ctx context.Context, status, prompt string) (string, error) {
	stop := e.Console.Status(status + " " + e.ModelName + "...")
	defer stop()
	out, err := e.Backend.Complete(ctx, prompt, e.Model)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// confirm reads a yes/no answer. An empty answer picks defaultYes.
func (e *Env) confirm(defaultYes bool) (bool, error) {
	prompt := "Enter y/N: "
	if defaultYes {
		prompt = "Enter Y/n: "
	}
	answer, err := e.Prompter.ReadLine(prompt)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	case "":
		return defaultYes, nil
	default:
		return false, nil
	}
}

// claims reports whether input starts with prefix and no other action owns it.
func claims(input string, own []command.Option, prefix string, reg *command.Registry) bool {
	if reg.ConflictsWith(input, own) {
		return false
	}
	return command.MatchesPrefix(input, prefix)
}

func previewText(content string, limit int) string {
	r := []rune(content)
	if len(r) <= limit {
		return content
	}
	return string(r[:limit]) + "..."
}
