package actions

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"ask/internal/chat"
	"ask/internal/command"
	"ask/internal/render"
	"ask/internal/session"
	"ask/internal/tools"
)

// fakeBackend replays scripted replies and records what it was sent.
type fakeBackend struct {
	replies   []string
	completes []string
	err       error

	conversed [][]chat.Message
	maxTokens []int
	prompts   []string
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Complete(_ context.Context, prompt string, _ string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.completes) == 0 {
		return "", errors.New("unexpected Complete call")
	}
	out := f.completes[0]
	f.completes = f.completes[1:]
	return out, nil
}

func (f *fakeBackend) Converse(_ context.Context, messages []chat.Message, _ string, maxTokens int) (chat.Message, error) {
	f.conversed = append(f.conversed, chat.Clone(messages))
	f.maxTokens = append(f.maxTokens, maxTokens)
	if f.err != nil {
		return chat.Message{}, f.err
	}
	if len(f.replies) == 0 {
		return chat.Message{}, errors.New("unexpected Converse call")
	}
	out := f.replies[0]
	f.replies = f.replies[1:]
	return chat.Assistant(out), nil
}

// scriptedPrompter answers prompts in order and returns io.EOF once exhausted.
type scriptedPrompter struct {
	answers []string
	prompts []string
}

func (p *scriptedPrompter) ReadLine(prompt string) (string, error) {
	p.prompts = append(p.prompts, prompt)
	if len(p.answers) == 0 {
		return "", io.EOF
	}
	out := p.answers[0]
	p.answers = p.answers[1:]
	return out, nil
}

type fakeRunner struct {
	result   tools.ExecResult
	err      error
	commands []string
}

func (r *fakeRunner) Run(_ context.Context, cmd string) (tools.ExecResult, error) {
	r.commands = append(r.commands, cmd)
	if r.err != nil {
		return tools.ExecResult{}, r.err
	}
	res := r.result
	res.Command = cmd
	return res, nil
}

type testEnv struct {
	env      *Env
	backend  *fakeBackend
	prompter *scriptedPrompter
	out      *bytes.Buffer
}

func newTestEnv(t *testing.T, backend *fakeBackend, answers ...string) *testEnv {
	t.Helper()
	if backend == nil {
		backend = &fakeBackend{}
	}
	out := &bytes.Buffer{}
	prompter := &scriptedPrompter{answers: answers}
	env := &Env{
		Backend:    backend,
		Model:      "test-model",
		ModelName:  "Test",
		Console:    render.NewConsole(out, render.Options{Width: 80}),
		Prompter:   prompter,
		SystemInfo: func(context.Context) string { return "TestOS 1.0" },
	}
	return &testEnv{env: env, backend: backend, prompter: prompter, out: out}
}

func registryFor(actions ...Action) *command.Registry {
	reg := command.NewRegistry()
	for _, a := range actions {
		reg.Add(a.Options()...)
	}
	return reg
}

// dispatch runs the first matching action, the way the session loop does.
func dispatch(t *testing.T, input string, st *session.State, actions ...Action) error {
	t.Helper()
	reg := registryFor(actions...)
	for _, a := range actions {
		if a.Match(input, st, reg) {
			return a.Run(context.Background(), input, st)
		}
	}
	t.Fatalf("no action matched %q", input)
	return nil
}

func roles(msgs []chat.Message) []chat.Role {
	out := make([]chat.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}
