package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var overwriteRedirectPattern = regexp.MustCompile(`(^|\s)(1>|2>|>)(\s*)([^\s]+)`)

// ExecResult is the outcome of one shell command, local or remote.
type ExecResult struct {
	Command   string
	ExitCode  int
	Stdout    string
	Stderr    string
	Truncated bool
	Duration  time.Duration
}

// Transcript renders the result the way it is shown to the user and stored in history.
func (r ExecResult) Transcript() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Command: %s\n\nExit Code: %d", r.Command, r.ExitCode)
	if r.Stdout != "" {
		b.WriteString("\n\nStdout:\n")
		b.WriteString(r.Stdout)
	}
	if r.Stderr != "" {
		b.WriteString("\n\nStderr:\n")
		b.WriteString(r.Stderr)
	}
	return b.String()
}

// ShellRunner 在本机非交互 shell 中执行命令
// ShellRunner executes commands in a local non-interactive shell
type ShellRunner struct {
	dir              string
	commandTimeoutMS int
	outputLimitBytes int
}

func NewShellRunner(dir string, commandTimeoutMS, outputLimitBytes int) *ShellRunner {
	return &ShellRunner{
		dir:              dir,
		commandTimeoutMS: commandTimeoutMS,
		outputLimitBytes: outputLimitBytes,
	}
}

func (r *ShellRunner) Run(ctx context.Context, command string) (ExecResult, error) {
	if strings.TrimSpace(command) == "" {
		return ExecResult{}, errors.New("shell command is empty")
	}

	execCtx := ctx
	if r.commandTimeoutMS > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, time.Duration(r.commandTimeoutMS)*time.Millisecond)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, "/bin/sh", "-c", command)
	cmd.Dir = r.dir
	cmd.WaitDelay = time.Second

	stdout := newCappedBuffer(r.outputLimitBytes)
	stderr := newCappedBuffer(r.outputLimitBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	dur := time.Since(start)

	exitCode := 0
	if err != nil {
		var ee *exec.ExitError
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			exitCode = 124
		} else if errors.As(err, &ee) {
			exitCode = ee.ExitCode()
		} else {
			return ExecResult{}, fmt.Errorf("run shell command: %w", err)
		}
	}

	return ExecResult{
		Command:   command,
		ExitCode:  exitCode,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
		Duration:  dur,
	}, nil
}

// ExistingRedirectTarget returns a file that command would overwrite through `>`, if one exists.
func (r *ShellRunner) ExistingRedirectTarget(command string) string {
	root := r.dir
	if root == "" {
		root, _ = os.Getwd()
	}
	matches := overwriteRedirectPattern.FindAllStringSubmatch(command, -1)
	for _, m := range matches {
		if len(m) < 5 {
			continue
		}
		target := strings.Trim(m[4], `"'`)
		if target == "" || strings.HasPrefix(target, "&") || target == "/dev/null" {
			continue
		}
		resolved := target
		if !filepath.IsAbs(target) {
			resolved = filepath.Join(root, target)
		}
		info, err := os.Stat(resolved)
		if err == nil && !info.IsDir() {
			return resolved
		}
	}
	return ""
}

type cappedBuffer struct {
	max       int
	buf       bytes.Buffer
	truncated bool
}

func newCappedBuffer(max int) *cappedBuffer {
	if max <= 0 {
		max = 1 << 20
	}
	return &cappedBuffer{max: max}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if b.truncated {
		return len(p), nil
	}
	remain := b.max - b.buf.Len()
	if remain <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remain {
		_, _ = b.buf.Write(p[:remain])
		b.truncated = true
		return len(p), nil
	}
	_, err := b.buf.Write(p)
	return len(p), err
}

func (b *cappedBuffer) String() string {
	if !b.truncated {
		return b.buf.String()
	}
	var out bytes.Buffer
	_, _ = io.Copy(&out, bytes.NewReader(b.buf.Bytes()))
	out.WriteString("\n[output truncated]")
	return out.String()
}

// CappedWriters returns a pair of capped writers for stdout and stderr plus a collector.
func CappedWriters(limit int) (stdout io.Writer, stderr io.Writer, collect func(ExecResult) ExecResult) {
	out := newCappedBuffer(limit)
	errBuf := newCappedBuffer(limit)
	return out, errBuf, func(r ExecResult) ExecResult {
		r.Stdout = out.String()
		r.Stderr = errBuf.String()
		r.Truncated = out.truncated || errBuf.truncated
		return r
	}
}
