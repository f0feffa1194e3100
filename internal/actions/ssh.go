package actions

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"ask/internal/command"
	"ask/internal/session"
)

const (
	sshPrefix           = `\ssh`
	sshConnectPrefix    = `\ssh connect`
	sshDisconnectPrefix = `\ssh disconnect`

	noCommandSentinel = "NO_COMMAND_EXTRACTED"
)

const sshInstruction = `Write a single shell command to help the user achieve this goal in the context of this chat: %s
This command will be executed over SSH on remote host %s.
You do not need to SSH into the host, the command is run on it directly.
Do not suggest commands that require interactive or TTY mode: these commands get run in a non-interactive session.
Include a brief explanation (1-2 sentences) of why you chose this command, but keep the explanation clearly separated from the command.
Structure your response so that you start with the explanation and emit the command at the end.
Host system info (take this into consideration):
%s`

const sshExtractPrompt = `Extract the proposed SSH command from this chat log.
Return only a single command and nothing else.
This is the chat log:
%s
If there is not any command to extract then return only the exact string ` + noCommandSentinel

// RemoteSession is an open connection to a remote host.
type RemoteSession interface {
	CommandRunner
	SystemInfo(ctx context.Context) (string, error)
	Close() error
}

// Dialer opens a RemoteSession for the host described by rc.
type Dialer func(ctx context.Context, rc session.RemoteConfig) (RemoteSession, error)

// SSHAction 通过 SSH 在远程主机上生成并执行命令
// SSHAction proposes and runs commands on a remote host over SSH
type SSHAction struct {
	env    *Env
	dial   Dialer
	client RemoteSession
}

func NewSSHAction(env *Env, dial Dialer) *SSHAction {
	return &SSHAction{env: env, dial: dial}
}

func (a *SSHAction) Name() string { return "ssh" }

func (a *SSHAction) Options() []command.Option {
	return []command.Option{
		{Template: `\ssh`, Description: "Toggle SSH mode", Prefix: sshPrefix},
		{Template: `\ssh connect`, Description: "Connect to a new SSH host", Prefix: sshConnectPrefix},
		{Template: `\ssh disconnect`, Description: "Close the SSH connection", Prefix: sshDisconnectPrefix},
		{
			Template:    `\ssh <goal>`,
			Description: "Propose and run a command on the SSH host",
			Prefix:      sshPrefix,
			Example:     `\ssh show disk usage`,
		},
	}
}

func (a *SSHAction) Match(input string, st *session.State, reg *command.Registry) bool {
	if reg.ConflictsWith(input, a.Options()) {
		return false
	}
	if command.MatchesPrefix(input, sshPrefix) {
		return true
	}
	return st.Mode == session.ModeSSH && strings.TrimSpace(input) != ""
}

func (a *SSHAction) Run(ctx context.Context, input string, st *session.State) error {
	switch {
	case command.MatchesPrefix(input, sshConnectPrefix):
		return a.connectNew(ctx, st)
	case command.MatchesPrefix(input, sshDisconnectPrefix):
		a.disconnect(st)
		return nil
	}
	goal := strings.TrimSpace(input)
	if rest, ok := command.TrimPrefix(input, sshPrefix); ok {
		if rest == "" {
			return a.toggle(ctx, st)
		}
		goal = rest
	}
	return a.runGoal(ctx, st, goal)
}

// Close releases the connection, if any.
func (a *SSHAction) Close() error {
	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client = nil
	return err
}

func (a *SSHAction) toggle(ctx context.Context, st *session.State) error {
	if st.Mode == session.ModeSSH {
		st.Mode = session.ModeChat
		a.env.Console.Info("SSH mode disabled")
		return nil
	}
	if st.Remote == nil {
		rc, err := a.promptConfig()
		if err != nil {
			return err
		}
		st.Remote = &rc
	}
	if a.client == nil {
		return a.connect(ctx, st)
	}
	a.enable(st)
	return nil
}

func (a *SSHAction) connectNew(ctx context.Context, st *session.State) error {
	rc, err := a.promptConfig()
	if err != nil {
		return err
	}
	_ = a.Close()
	st.Remote = &rc
	return a.connect(ctx, st)
}

func (a *SSHAction) enable(st *session.State) {
	if st.Mode.IsTask() {
		st.ExitTask()
	}
	st.Mode = session.ModeSSH
	a.env.Console.Info("SSH mode enabled")
}

// connect dials st.Remote; on failure the session falls back to chat and forgets the host.
func (a *SSHAction) connect(ctx context.Context, st *session.State) error {
	rc := *st.Remote
	stop := a.env.Console.Status("Connecting to " + rc.ConnName() + "...")
	client, err := a.dial(ctx, rc)
	stop()
	if err != nil {
		a.env.logger().Warn("ssh connect failed", zap.String("host", rc.ConnName()), zap.Error(err))
		a.env.Console.Errorf("SSH connection failed: %v", err)
		st.Disconnect()
		if st.Mode.IsTask() {
			st.ExitTask()
		}
		st.Mode = session.ModeChat
		a.env.Console.Info("SSH mode disabled")
		return nil
	}
	a.client = client
	if info, err := client.SystemInfo(ctx); err == nil {
		st.Remote.SystemInfo = info
	} else {
		a.env.logger().Debug("remote system info failed", zap.Error(err))
	}
	a.enable(st)
	a.env.Console.Success("Connected to " + rc.Username + "@" + rc.Host)
	return nil
}

func (a *SSHAction) disconnect(st *session.State) {
	if a.client == nil {
		a.env.Console.Warn("Not connected to any SSH host")
		return
	}
	if err := a.Close(); err != nil {
		a.env.logger().Debug("ssh close failed", zap.Error(err))
	}
	st.Disconnect()
	a.env.Console.Info("Disconnected from SSH host")
}

func (a *SSHAction) runGoal(ctx context.Context, st *session.State, goal string) error {
	if a.client == nil || st.Remote == nil {
		a.env.Console.Warn("Not connected to any SSH host.")
		return nil
	}
	conn := st.Remote.ConnName()
	return a.env.runCommandFlow(ctx, st, commandFlow{
		goal:         goal,
		instruction:  fmt.Sprintf(sshInstruction, goal, conn, st.Remote.SystemInfo),
		extract:      func(reply string) string { return fmt.Sprintf(sshExtractPrompt, reply) },
		sentinel:     noCommandSentinel,
		confirmLabel: "Execute this command on " + conn + "?",
		outputHeader: "SSH Command Output:",
		executed:     "SSH command executed",
		failed:       "Error executing SSH command",
		runner:       a.client,
	})
}

func (a *SSHAction) promptConfig() (session.RemoteConfig, error) {
	a.env.Console.Info("Setup SSH Config")
	var rc session.RemoteConfig
	for rc.Host == "" {
		host, err := a.env.Prompter.ReadLine("Host: ")
		if err != nil {
			return rc, err
		}
		rc.Host = strings.TrimSpace(host)
	}
	defaultUser := os.Getenv("USER")
	label := "Username: "
	if defaultUser != "" {
		label = fmt.Sprintf("Username (%s): ", defaultUser)
	}
	user, err := a.env.Prompter.ReadLine(label)
	if err != nil {
		return rc, err
	}
	rc.Username = strings.TrimSpace(user)
	if rc.Username == "" {
		rc.Username = defaultUser
	}
	for {
		port, err := a.env.Prompter.ReadLine(fmt.Sprintf("Port (%d): ", session.DefaultSSHPort))
		if err != nil {
			return rc, err
		}
		port = strings.TrimSpace(port)
		if port == "" {
			rc.Port = session.DefaultSSHPort
			return rc, nil
		}
		n, err := strconv.Atoi(port)
		if err == nil && n > 0 && n < 65536 {
			rc.Port = n
			return rc, nil
		}
		a.env.Console.Error("Port must be a number between 1 and 65535")
	}
}
