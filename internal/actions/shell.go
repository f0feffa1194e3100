package actions

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ask/internal/chat"
	"ask/internal/command"
	"ask/internal/provider"
	"ask/internal/security"
	"ask/internal/session"
)

const (
	shellPrefix = `\shell`

	noCommandExtracted = "No command could be extracted"
)

const shellInstruction = `Write a single shell command to help the user achieve this goal in the context of this chat: %s
Do not suggest shell commands that require interactive or TTY mode: these commands get run in a non-interactive subprocess.
Include a brief explanation (1-2 sentences) of why you chose this shell command, but keep the explanation clearly separated from the command.
Structure your response so that you start with the explanation and emit the shell command at the end.
System info (take this into consideration):
%s`

const shellExtractPrompt = `Extract the proposed shell command from this chat log.
Return only a single shell command and nothing else.
This is the chat log:
%s`

const followupInstruction = `Write a brief (1 sentence) followup commentary on the result of the execution of the command: %s
based on the user's original request: %s`

// commandFlow 描述一次"生成-提取-确认-执行-点评"流程
// commandFlow describes one generate, extract, confirm, execute and comment round
type commandFlow struct {
	goal        string
	instruction string
	extract     func(reply string) string
	// sentinel is what the extraction prompt returns when there is no command.
	sentinel     string
	confirmLabel string
	outputHeader string
	executed     string
	failed       string
	runner       CommandRunner
}

// redirectChecker is implemented by runners that can spot `>` overwriting an existing file.
type redirectChecker interface {
	ExistingRedirectTarget(command string) string
}

func (e *Env) runCommandFlow(ctx context.Context, st *session.State, f commandFlow) error {
	st.Append(chat.User(f.instruction))
	reply, err := e.converse(ctx, "Generating command", st.Messages, 0)
	if err != nil {
		st.Messages = st.Messages[:len(st.Messages)-1]
		return err
	}
	st.Append(reply)
	e.Console.Assistant(reply.Content)

	extracted, err := e.complete(ctx, "Extracting command", f.extract(reply.Content))
	if err != nil {
		return err
	}
	cmd := cleanCommand(extracted)
	if cmd == "" || provider.IsUnavailableText(cmd) || (f.sentinel != "" && strings.Contains(cmd, f.sentinel)) {
		e.Console.Warn(noCommandExtracted)
		st.Append(chat.User(noCommandExtracted))
		return nil
	}

	e.Console.Info(f.confirmLabel)
	e.Console.Command(cmd)
	if risk := security.AnalyzeCommand(cmd); risk.Risky {
		e.Console.Warn("Warning: " + risk.Summary())
	}
	if rc, ok := f.runner.(redirectChecker); ok {
		if target := rc.ExistingRedirectTarget(cmd); target != "" {
			e.Console.Warn("Warning: this command overwrites " + target)
		}
	}
	ok, err := e.confirm(true)
	if err != nil {
		return err
	}
	if !ok {
		e.Console.Muted("Command execution cancelled.")
		st.Append(chat.User("Command execution cancelled by user."))
		return nil
	}

	e.logger().Info("executing command", zap.String("command", cmd))
	stop := e.Console.Status("Running command...")
	res, err := f.runner.Run(ctx, cmd)
	stop()
	if err != nil {
		msg := fmt.Sprintf("%s: %v", f.failed, err)
		e.Console.Error(msg)
		st.Append(chat.User(msg))
		return nil
	}
	transcript := res.Transcript()
	if res.Truncated {
		transcript += "\n\n(output truncated)"
	}
	e.Console.Info(f.outputHeader)
	e.Console.Code("", transcript)
	st.Append(chat.User(f.executed + ":\n\n" + transcript))

	st.Append(chat.User(fmt.Sprintf(followupInstruction, cmd, f.goal)))
	comment, err := e.converse(ctx, "Analysing output", st.Messages, 0)
	if err != nil {
		return err
	}
	st.Append(comment)
	e.Console.Assistant(comment.Content)
	return nil
}

// cleanCommand strips code fences and a leading prompt sign from an extracted command.
func cleanCommand(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	s = strings.Trim(strings.TrimSpace(s), "`")
	return strings.TrimSpace(strings.TrimPrefix(s, "$ "))
}

// ShellAction 在本机生成并执行 shell 命令
// ShellAction proposes and runs shell commands on the local machine
type ShellAction struct {
	env    *Env
	runner CommandRunner
}

func NewShellAction(env *Env, runner CommandRunner) *ShellAction {
	return &ShellAction{env: env, runner: runner}
}

func (a *ShellAction) Name() string { return "shell" }

func (a *ShellAction) Options() []command.Option {
	return []command.Option{
		{Template: `\shell`, Description: "Toggle shell mode", Prefix: shellPrefix},
		{
			Template:    `\shell <goal>`,
			Description: "Propose and run a shell command",
			Prefix:      shellPrefix,
			Example:     `\shell find large files here`,
		},
	}
}

func (a *ShellAction) Match(input string, st *session.State, reg *command.Registry) bool {
	if reg.ConflictsWith(input, a.Options()) {
		return false
	}
	if command.MatchesPrefix(input, shellPrefix) {
		return true
	}
	return st.Mode == session.ModeShell && strings.TrimSpace(input) != ""
}

func (a *ShellAction) Run(ctx context.Context, input string, st *session.State) error {
	goal := strings.TrimSpace(input)
	if rest, ok := command.TrimPrefix(input, shellPrefix); ok {
		if rest == "" {
			a.toggle(st)
			return nil
		}
		goal = rest
	}
	return a.env.runCommandFlow(ctx, st, commandFlow{
		goal:         goal,
		instruction:  fmt.Sprintf(shellInstruction, goal, a.env.systemInfo(ctx)),
		extract:      func(reply string) string { return fmt.Sprintf(shellExtractPrompt, reply) },
		confirmLabel: "Execute this command?",
		outputHeader: "Shell Command Output:",
		executed:     "Shell command executed",
		failed:       "Error executing shell command",
		runner:       a.runner,
	})
}

func (a *ShellAction) toggle(st *session.State) {
	if st.Mode == session.ModeShell {
		st.Mode = session.ModeChat
		a.env.Console.Info("Shell mode disabled")
		return
	}
	if st.Mode.IsTask() {
		st.ExitTask()
	}
	st.Mode = session.ModeShell
	a.env.Console.Info("Shell mode enabled")
}
