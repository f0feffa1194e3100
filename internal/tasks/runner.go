package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"

	"ask/internal/storage"
	"ask/internal/tools"
)

// ErrNoScript is returned when a task has metadata but no script yet.
var ErrNoScript = errors.New("task has no script")

// Entrypoint runs a resolved task: input validation, script, output validation.
type Entrypoint func(input map[string]any) (map[string]any, error)

// ScriptFunc is the signature every task script exports as Run.
type ScriptFunc = func(
	input map[string]any,
	deps map[string]func(map[string]any) (map[string]any, error),
	tools map[string]func(map[string]any) (any, error),
) (map[string]any, error)

type RunnerOptions struct {
	Timeout time.Duration
	RunLog  storage.RunLog
	Logger  *zap.Logger
}

// Runner loads task scripts with yaegi and executes them with their
// dependencies and the shared tool set injected.
type Runner struct {
	store   *Store
	tools   *tools.Registry
	timeout time.Duration
	runLog  storage.RunLog
	logger  *zap.Logger
}

func NewRunner(store *Store, registry *tools.Registry, opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return &Runner{
		store:   store,
		tools:   registry,
		timeout: opts.Timeout,
		runLog:  opts.RunLog,
		logger:  logger,
	}
}

// Resolve builds the entrypoint of slug and, recursively, of its dependencies.
func (r *Runner) Resolve(ctx context.Context, slug string) (Entrypoint, error) {
	index, err := r.store.Load()
	if err != nil {
		return nil, err
	}
	return r.resolve(ctx, slug, index, map[string]bool{}, map[string]Entrypoint{})
}

func (r *Runner) resolve(ctx context.Context, slug string, index map[string]Meta, visiting map[string]bool, resolved map[string]Entrypoint) (Entrypoint, error) {
	if ep, ok := resolved[slug]; ok {
		return ep, nil
	}
	if visiting[slug] {
		return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, slug)
	}
	meta, ok := index[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, slug)
	}
	visiting[slug] = true
	defer delete(visiting, slug)

	deps := make(map[string]func(map[string]any) (map[string]any, error), len(meta.DependsOn))
	for _, dep := range meta.DependsOn {
		ep, err := r.resolve(ctx, dep, index, visiting, resolved)
		if err != nil {
			return nil, fmt.Errorf("resolve dependency %s of %s: %w", dep, slug, err)
		}
		deps[dep] = ep
	}

	src, err := r.store.LoadScript(slug)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoScript, slug)
		}
		return nil, fmt.Errorf("read script %s: %w", slug, err)
	}
	run, err := loadScript(src)
	if err != nil {
		return nil, fmt.Errorf("load script %s: %w", slug, err)
	}

	inSchema, err := compileSchema(meta.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("task %s input_schema: %w", slug, err)
	}
	outSchema, err := compileSchema(meta.OutputSchema)
	if err != nil {
		return nil, fmt.Errorf("task %s output_schema: %w", slug, err)
	}
	scriptTools := r.tools.Funcs(ctx)

	ep := func(input map[string]any) (map[string]any, error) {
		if input == nil {
			input = map[string]any{}
		}
		if err := validateValue(inSchema, input); err != nil {
			return nil, &SchemaError{Slug: slug, Stage: "input", Err: err}
		}
		r.logger.Debug("task script start", zap.String("slug", slug))
		out, err := callScript(run, input, deps, scriptTools)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", slug, err)
		}
		if err := validateValue(outSchema, out); err != nil {
			return nil, &SchemaError{Slug: slug, Stage: "output", Err: err}
		}
		return out, nil
	}
	resolved[slug] = ep
	return ep, nil
}

// Run resolves slug, executes it under the configured timeout and records the outcome.
func (r *Runner) Run(ctx context.Context, slug string, input map[string]any) (map[string]any, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	started := time.Now()

	out, err := r.execute(ctx, slug, input)
	r.record(slug, input, out, err, started)
	if err != nil {
		r.logger.Warn("task run failed", zap.String("slug", slug), zap.Error(err))
		return nil, err
	}
	r.logger.Info("task run finished", zap.String("slug", slug), zap.Duration("duration", time.Since(started)))
	return out, nil
}

func (r *Runner) execute(ctx context.Context, slug string, input map[string]any) (map[string]any, error) {
	ep, err := r.Resolve(ctx, slug)
	if err != nil {
		return nil, err
	}

	type result struct {
		out map[string]any
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := ep(input)
		done <- result{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("task %s timed out: %w", slug, ctx.Err())
	}
}

func (r *Runner) record(slug string, input, out map[string]any, runErr error, started time.Time) {
	if r.runLog == nil {
		return
	}
	run := storage.TaskRun{
		Slug:      slug,
		Input:     encodeCompact(input),
		Status:    storage.RunStatusOK,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	if out != nil {
		run.Output = encodeCompact(out)
	}
	if runErr != nil {
		run.Status = storage.RunStatusFailed
		run.Error = runErr.Error()
	}
	// ctx may already be cancelled by the run timeout
	if _, err := r.runLog.RecordRun(context.Background(), run); err != nil {
		r.logger.Warn("record task run", zap.String("slug", slug), zap.Error(err))
	}
}

func encodeCompact(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// CheckScript reports whether src evaluates and exposes a Run function with the task signature.
func CheckScript(src string) error {
	_, err := loadScript(src)
	return err
}

// loadScript evaluates src in a fresh interpreter and returns its Run function.
func loadScript(src string) (ScriptFunc, error) {
	pkg := "main"
	file, err := parser.ParseFile(token.NewFileSet(), "", src, parser.PackageClauseOnly)
	if err != nil {
		src = "package main\n\n" + src
	} else {
		pkg = file.Name.Name
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib: %w", err)
	}
	if _, err := i.Eval(src); err != nil {
		return nil, fmt.Errorf("evaluate script: %w", err)
	}
	v, err := i.Eval(pkg + ".Run")
	if err != nil {
		return nil, fmt.Errorf("script has no Run function: %w", err)
	}
	run, ok := v.Interface().(ScriptFunc)
	if !ok {
		return nil, fmt.Errorf("script Run has signature %s, want %T", v.Type(), ScriptFunc(nil))
	}
	return run, nil
}

// callScript turns a panic inside interpreted code into an error.
func callScript(run ScriptFunc, input map[string]any, deps map[string]func(map[string]any) (map[string]any, error), scriptTools map[string]tools.Func) (out map[string]any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("script panicked: %v", p)
		}
	}()
	return run(input, deps, scriptTools)
}
