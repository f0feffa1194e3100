package actions

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ask/internal/chat"
	"ask/internal/command"
	"ask/internal/contextmgr"
	"ask/internal/session"
)

const compressPrefix = `\compress`

type CompressHistoryAction struct {
	env        *Env
	compressor *contextmgr.Compressor
}

func NewCompressHistoryAction(env *Env) *CompressHistoryAction {
	a := &CompressHistoryAction{env: env}
	a.compressor = contextmgr.NewCompressor(func(ctx context.Context, msgs []chat.Message) (chat.Message, error) {
		return env.Backend.Converse(ctx, msgs, env.Model, env.maxTokens())
	}, contextmgr.CompressThreshold)
	return a
}

func (a *CompressHistoryAction) Name() string { return "compress" }

func (a *CompressHistoryAction) Options() []command.Option {
	return []command.Option{{Template: `\compress`, Description: "Compress chat history", Prefix: compressPrefix}}
}

func (a *CompressHistoryAction) Match(input string, _ *session.State, reg *command.Registry) bool {
	return claims(input, a.Options(), compressPrefix, reg)
}

func (a *CompressHistoryAction) Run(ctx context.Context, _ string, st *session.State) error {
	before := chat.CountChars(st.Messages)
	if !a.compressor.NeedsCompression(st.Messages) {
		a.env.logger().Debug("no message over the compression threshold", zap.Int("messages", len(st.Messages)))
		a.env.Console.Success(fmt.Sprintf("Chat history compressed. (%d -> %d chars)", before, before))
		return nil
	}
	stop := func() {}
	compressed, err := a.compressor.Compress(ctx, st.Messages, func(done, total int) {
		stop()
		stop = a.env.Console.Status(fmt.Sprintf("Compressing chat history... %d/%d", done, total))
	})
	stop()
	if err != nil {
		return err
	}
	st.Messages = compressed
	a.env.logger().Debug("history compressed")
	a.env.Console.Success(fmt.Sprintf("Chat history compressed. (%d -> %d chars)", before, chat.CountChars(compressed)))
	return nil
}
