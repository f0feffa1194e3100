package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ask/internal/actions"
	"ask/internal/config"
	"ask/internal/contextmgr"
	"ask/internal/logging"
	"ask/internal/provider"
	"ask/internal/remote"
	"ask/internal/render"
	"ask/internal/repl"
	"ask/internal/session"
	"ask/internal/storage"
	"ask/internal/tasks"
	"ask/internal/tools"
)

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, Verbose: verbose})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sel, err := provider.Select(cfg)
	if err != nil {
		return err
	}

	in, inErr := repl.NewLineInput(filepath.Join(cfg.Storage.BaseDir, "repl.history"))
	if inErr != nil {
		fmt.Fprintf(os.Stderr, "readline unavailable, using basic input: %v\n", inErr)
	}
	defer in.Close()

	runLog, err := storage.NewSQLiteStore(filepath.Join(cfg.Storage.BaseDir, "ask.db"))
	if err != nil {
		return fmt.Errorf("init storage failed: %w", err)
	}
	defer runLog.Close()
	logger.Debug("run log opened", zap.String("path", runLog.Path()))

	console := render.NewConsole(os.Stdout, render.Options{})
	app, err := buildApp(cfg, sel, appDeps{
		console:  console,
		prompter: in,
		runLog:   runLog,
		logger:   logger,
	})
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("session started", zap.String("vendor", sel.Vendor), zap.String("model", sel.Model))
	console.Success("Chatting with " + sel.Describe())
	app.dispatcher.PrintHelp()

	if text := strings.TrimSpace(strings.Join(args, " ")); text != "" {
		console.Printf("\nYou: %s\n", text)
		if err := app.dispatcher.Dispatch(ctx, text); err != nil && !errors.Is(err, repl.ErrNoMatch) {
			console.Errorf("Error: %v", err)
		}
	}
	return app.dispatcher.Run(ctx, in)
}

type appDeps struct {
	console  *render.Console
	prompter actions.Prompter
	runLog   storage.RunLog
	logger   *zap.Logger
}

type app struct {
	dispatcher *repl.Dispatcher
	ssh        *actions.SSHAction
}

func (a *app) close() {
	if a.ssh != nil {
		_ = a.ssh.Close()
	}
}

// buildApp wires every action in dispatch order. Earlier actions win.
func buildApp(cfg config.Config, sel provider.Selection, deps appDeps) (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve cwd failed: %w", err)
	}

	env := &actions.Env{
		Backend:   provider.New(cfg, sel),
		Model:     sel.Model,
		ModelName: sel.Describe(),
		MaxTokens: cfg.Provider.MaxTokens,
		Console:   deps.console,
		Prompter:  deps.prompter,
		Logger:    deps.logger,
	}

	fetcher := tools.NewFetcher(tools.FetchConfig{
		TimeoutSec: cfg.Web.TimeoutSec,
		MaxSizeKB:  cfg.Web.MaxSizeKB,
		UserAgent:  cfg.Web.UserAgent,
	})
	registry := tools.NewDefaultRegistry(fetcher)
	store := tasks.NewStore(cfg.Tasks.Dir)
	runner := tasks.NewRunner(store, registry, tasks.RunnerOptions{
		Timeout: time.Duration(cfg.Tasks.RunTimeoutMS) * time.Millisecond,
		RunLog:  deps.runLog,
		Logger:  deps.logger,
	})
	shell := tools.NewShellRunner(cwd, cfg.Safety.CommandTimeoutMS, cfg.Safety.OutputLimitBytes)
	sshAction := actions.NewSSHAction(env, remoteDialer(cfg))

	acts := []actions.Action{
		actions.NewTaskAction(env, actions.TaskOptions{
			Store:  store,
			Runner: runner,
			Tools:  registry,
			RunLog: deps.runLog,
		}),
		sshAction,
		actions.NewShellAction(env, shell),
		actions.NewReadWebAction(env, fetcher),
		actions.NewReadFileAction(env),
		actions.NewClearHistoryAction(env),
		actions.NewCompressHistoryAction(env),
		actions.NewChatAction(env),
	}
	d := repl.New(acts, session.New(), repl.Options{
		Console:   deps.console,
		Tokenizer: contextmgr.NewTokenizerForModel(sel.Model),
		Logger:    deps.logger,
	})
	return &app{dispatcher: d, ssh: sshAction}, nil
}

// remoteDialer connects with the key, agent and known_hosts settings from cfg.
func remoteDialer(cfg config.Config) actions.Dialer {
	return func(ctx context.Context, rc session.RemoteConfig) (actions.RemoteSession, error) {
		client, err := remote.Dial(ctx, remoteConfig(cfg, rc))
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func remoteConfig(cfg config.Config, rc session.RemoteConfig) remote.Config {
	return remote.Config{
		Host:           rc.Host,
		Username:       rc.Username,
		Port:           rc.Port,
		KeyPaths:       cfg.SSH.KeyPaths,
		UseAgent:       cfg.SSH.AgentEnabled(),
		KnownHosts:     cfg.SSH.KnownHosts,
		Timeout:        time.Duration(cfg.SSH.TimeoutMS) * time.Millisecond,
		OutputLimit:    cfg.Safety.OutputLimitBytes,
		CommandTimeout: time.Duration(cfg.Safety.CommandTimeoutMS) * time.Millisecond,
	}
}
