package actions

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"ask/internal/chat"
	"ask/internal/command"
	"ask/internal/session"
	"ask/internal/tools"
)

const (
	filePrefix   = `\file`
	webPrefix    = `\web`
	previewChars = 512
)

// TextFetcher returns the readable text of a URL.
type TextFetcher interface {
	FetchText(ctx context.Context, rawURL string) (string, error)
}

// addContent shows a preview and appends the full content as a user message.
func (e *Env) addContent(st *session.State, source, content string) {
	e.Console.Info(fmt.Sprintf("Content from %s:", source))
	e.Console.Muted(previewText(content, previewChars))
	st.Append(chat.User(fmt.Sprintf("Content from %s (%d chars total):\n\n%s", source, utf8.RuneCountInString(content), content)))
}

// ReadFileAction adds a local file to the conversation.
type ReadFileAction struct {
	env *Env
}

func NewReadFileAction(env *Env) *ReadFileAction {
	return &ReadFileAction{env: env}
}

func (a *ReadFileAction) Name() string { return "file" }

func (a *ReadFileAction) Options() []command.Option {
	return []command.Option{{
		Template:    `\file <path>`,
		Description: "Add a local text or PDF file to the chat",
		Prefix:      filePrefix,
		Example:     `\file ~/notes.md`,
	}}
}

func (a *ReadFileAction) Match(input string, _ *session.State, reg *command.Registry) bool {
	return claims(input, a.Options(), filePrefix, reg)
}

func (a *ReadFileAction) Run(_ context.Context, input string, st *session.State) error {
	path, _ := command.TrimPrefix(input, filePrefix)
	if path == "" {
		a.env.Console.Error(`Usage: \file <path>`)
		return nil
	}
	content, err := tools.ReadText(path)
	switch {
	case errors.Is(err, tools.ErrFileNotFound):
		a.env.Console.Errorf("Error: File '%s' not found.", path)
		return nil
	case err != nil:
		a.env.logger().Debug("read file failed", zap.String("path", path), zap.Error(err))
		a.env.Console.Errorf("Error: Unable to read file '%s'.", path)
		return nil
	}
	a.env.addContent(st, path, content)
	return nil
}

// ReadWebAction adds the text of a web page (or PDF) to the conversation.
type ReadWebAction struct {
	env     *Env
	fetcher TextFetcher
}

func NewReadWebAction(env *Env, fetcher TextFetcher) *ReadWebAction {
	return &ReadWebAction{env: env, fetcher: fetcher}
}

func (a *ReadWebAction) Name() string { return "web" }

func (a *ReadWebAction) Options() []command.Option {
	return []command.Option{{
		Template:    `\web <url>`,
		Description: "Add the text of a web page to the chat",
		Prefix:      webPrefix,
		Example:     `\web example.com`,
	}}
}

func (a *ReadWebAction) Match(input string, _ *session.State, reg *command.Registry) bool {
	return claims(input, a.Options(), webPrefix, reg)
}

func (a *ReadWebAction) Run(ctx context.Context, input string, st *session.State) error {
	rawURL, _ := command.TrimPrefix(input, webPrefix)
	if rawURL == "" {
		a.env.Console.Error(`Usage: \web <url>`)
		return nil
	}
	stop := a.env.Console.Status("Fetching " + rawURL + "...")
	content, err := a.fetcher.FetchText(ctx, rawURL)
	stop()
	if err != nil {
		a.env.Console.Errorf("Error: %v", err)
		return nil
	}
	a.env.addContent(st, tools.NormalizeURL(rawURL), content)
	return nil
}
