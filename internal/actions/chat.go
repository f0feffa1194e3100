package actions

import (
	"context"
	"strings"

	"ask/internal/chat"
	"ask/internal/command"
	"ask/internal/session"
)

const chatPrefix = `\chat`

// ChatAction is the default handler for free text in chat mode. `\chat`
// returns to chat mode from any other mode.
type ChatAction struct {
	env *Env
}

func NewChatAction(env *Env) *ChatAction {
	return &ChatAction{env: env}
}

func (a *ChatAction) Name() string { return "chat" }

func (a *ChatAction) Options() []command.Option {
	return []command.Option{
		{Template: `\chat`, Description: "Return to chat mode", Prefix: chatPrefix},
		{Template: `\chat <text>`, Description: "Chat from any mode", Prefix: chatPrefix},
	}
}

func (a *ChatAction) Match(input string, st *session.State, reg *command.Registry) bool {
	if reg.ConflictsWith(input, a.Options()) {
		return false
	}
	if command.MatchesPrefix(input, chatPrefix) {
		return true
	}
	return st.Mode == session.ModeChat && strings.TrimSpace(input) != ""
}

func (a *ChatAction) Run(ctx context.Context, input string, st *session.State) error {
	text := input
	if rest, ok := command.TrimPrefix(input, chatPrefix); ok {
		if st.Mode != session.ModeChat {
			left := st.Mode
			if st.Mode.IsTask() {
				st.ExitTask()
			}
			st.Mode = session.ModeChat
			a.env.Console.Info("Chat mode enabled (left " + left.Label() + ")")
		}
		text = rest
	}
	if text == "" {
		return nil
	}

	st.Append(chat.User(text))
	reply, err := a.env.converse(ctx, "Asking", st.Messages, 0)
	if err != nil {
		// drop the unanswered user message
		st.Messages = st.Messages[:len(st.Messages)-1]
		return err
	}
	st.Append(reply)
	a.env.Console.Assistant(reply.Content)
	return nil
}
