package repl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ask/internal/actions"
	"ask/internal/chat"
	"ask/internal/command"
	"ask/internal/contextmgr"
	"ask/internal/render"
	"ask/internal/session"
)

const (
	helpCommand = `\h`
	quitCommand = `\q`
)

var (
	// ErrQuit ends the session.
	ErrQuit = errors.New("quit")
	// ErrNoMatch is returned when no action claims the input.
	ErrNoMatch = errors.New("no action matched input")
)

type Options struct {
	Console *render.Console
	// Tokenizer estimates the history size shown in the separator; nil uses a heuristic.
	Tokenizer *contextmgr.Tokenizer
	Logger    *zap.Logger
}

// Dispatcher 按注册顺序把每行输入交给第一个认领它的动作
// Dispatcher hands each input line to the first action that claims it, in registration order
type Dispatcher struct {
	actions   []actions.Action
	registry  *command.Registry
	state     *session.State
	console   *render.Console
	tokenizer *contextmgr.Tokenizer
	logger    *zap.Logger
}

// New builds the command registry from the built-ins followed by every action's options.
func New(acts []actions.Action, st *session.State, opts Options) *Dispatcher {
	reg := command.NewRegistry(builtinOptions()...)
	for _, a := range acts {
		reg.Add(a.Options()...)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if st == nil {
		st = session.New()
	}
	return &Dispatcher{
		actions:   acts,
		registry:  reg,
		state:     st,
		console:   opts.Console,
		tokenizer: opts.Tokenizer,
		logger:    logger,
	}
}

func builtinOptions() []command.Option {
	return []command.Option{
		{Template: `\h`, Description: "Show this help", Prefix: helpCommand},
		{Template: `\q`, Description: "Quit", Prefix: quitCommand},
		{Template: "Enter", Description: "Submit your input"},
	}
}

func (d *Dispatcher) State() *session.State { return d.state }

func (d *Dispatcher) Registry() *command.Registry { return d.registry }

// Dispatch handles one input line.
func (d *Dispatcher) Dispatch(ctx context.Context, input string) error {
	switch {
	case command.MatchesPrefix(input, helpCommand):
		d.PrintHelp()
		return nil
	case command.MatchesPrefix(input, quitCommand):
		return ErrQuit
	}

	for _, a := range d.actions {
		if !a.Match(input, d.state, d.registry) {
			continue
		}
		d.logger.Debug("dispatch", zap.String("action", a.Name()), zap.String("mode", string(d.state.Mode)))
		if err := a.Run(ctx, input, d.state); err != nil {
			return fmt.Errorf("%s: %w", a.Name(), err)
		}
		if err := d.state.Validate(); err != nil {
			d.logger.Error("session state invalid", zap.String("action", a.Name()), zap.Error(err))
		}
		d.console.Separator(d.separatorInfo())
		return nil
	}
	return ErrNoMatch
}

func (d *Dispatcher) PrintHelp() {
	d.console.Panel("Commands", strings.Join(d.registry.HelpLines(), "\n"))
}

// separatorInfo renders e.g. " ssh bob@db:22 [4 msgs, 812 chars, ~230 tokens]".
func (d *Dispatcher) separatorInfo() string {
	st := d.state
	var b strings.Builder
	b.WriteString(" " + st.Mode.Label())
	if st.Remote != nil {
		b.WriteString(" " + st.Remote.ConnName())
	}
	if st.Mode.IsTask() && st.TaskSlug != "" {
		b.WriteString(" " + st.TaskSlug)
	}
	fmt.Fprintf(&b, " [%d msgs, %d chars, ~%d tokens]", len(st.Messages), chat.CountChars(st.Messages), d.tokens())
	return b.String()
}

func (d *Dispatcher) tokens() int {
	if d.tokenizer == nil {
		return contextmgr.EstimateTokens(d.state.Messages)
	}
	return d.tokenizer.Count(d.state.Messages)
}
