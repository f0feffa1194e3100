package actions

import (
	"context"

	"ask/internal/command"
	"ask/internal/session"
)

const clearPrefix = `\c`

type ClearHistoryAction struct {
	env *Env
}

func NewClearHistoryAction(env *Env) *ClearHistoryAction {
	return &ClearHistoryAction{env: env}
}

func (a *ClearHistoryAction) Name() string { return "clear" }

func (a *ClearHistoryAction) Options() []command.Option {
	return []command.Option{{Template: `\c`, Description: "Clear chat history", Prefix: clearPrefix}}
}

func (a *ClearHistoryAction) Match(input string, _ *session.State, reg *command.Registry) bool {
	return claims(input, a.Options(), clearPrefix, reg)
}

func (a *ClearHistoryAction) Run(_ context.Context, _ string, st *session.State) error {
	st.Messages = nil
	a.env.Console.Success("Chat history cleared.")
	return nil
}
