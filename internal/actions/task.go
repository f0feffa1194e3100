package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ask/internal/chat"
	"ask/internal/command"
	"ask/internal/config"
	"ask/internal/session"
	"ask/internal/storage"
	"ask/internal/tasks"
	"ask/internal/tools"
)

const (
	taskPrefix = `\task`

	historyLimit = 10
)

var slugCommands = map[string]bool{
	"create": true, "update": true, "inspect": true, "script": true,
	"run": true, "history": true, "delete": true,
}

const defineInstructionsPanel = "Here you will describe your task to the assistant, who will provide you with a task definition JSON. Once you're happy with the JSON you can accept it."

// TaskOptions are the collaborators of the task action.
type TaskOptions struct {
	Store  *tasks.Store
	Runner *tasks.Runner
	Tools  *tools.Registry
	// RunLog is optional; without it `\task history` is unavailable.
	RunLog storage.RunLog
}

// TaskAction 任务生命周期：列出、定义、查看、删除与运行
// TaskAction drives the task lifecycle: list, define, inspect, delete and run
type TaskAction struct {
	env    *Env
	store  *tasks.Store
	runner *tasks.Runner
	tools  *tools.Registry
	runLog storage.RunLog
}

func NewTaskAction(env *Env, opts TaskOptions) *TaskAction {
	reg := opts.Tools
	if reg == nil {
		reg = tools.NewRegistry()
	}
	return &TaskAction{env: env, store: opts.Store, runner: opts.Runner, tools: reg, runLog: opts.RunLog}
}

func (a *TaskAction) Name() string { return "task" }

func (a *TaskAction) Options() []command.Option {
	return []command.Option{
		{Template: `\task list`, Description: "List saved tasks", Prefix: taskPrefix},
		{Template: `\task create <slug>`, Description: "Define a new task with the assistant", Prefix: taskPrefix, Example: `\task create weather`},
		{Template: `\task update <slug>`, Description: "Refine an existing task definition", Prefix: taskPrefix},
		{Template: `\task inspect <slug>`, Description: "Show a task's definition and script", Prefix: taskPrefix},
		{Template: `\task script <slug> [path]`, Description: "Attach a Go script from a file or the last reply", Prefix: taskPrefix},
		{Template: `\task run <slug> [json]`, Description: "Run a task", Prefix: taskPrefix, Example: `\task run weather {"city": "Oslo"}`},
		{Template: `\task history <slug>`, Description: "Show recent runs of a task", Prefix: taskPrefix},
		{Template: `\task delete <slug>`, Description: "Delete a task nothing depends on", Prefix: taskPrefix},
	}
}

func (a *TaskAction) Match(input string, st *session.State, reg *command.Registry) bool {
	if reg.ConflictsWith(input, a.Options()) {
		return false
	}
	if command.MatchesPrefix(input, taskPrefix) {
		return true
	}
	return st.Mode.IsTask() && strings.TrimSpace(input) != ""
}

func (a *TaskAction) Run(ctx context.Context, input string, st *session.State) error {
	rest, ok := command.TrimPrefix(input, taskPrefix)
	if !ok {
		switch st.Mode {
		case session.ModeTaskDefine:
			return a.defineTurn(ctx, strings.TrimSpace(input), st)
		default:
			a.finishUnavailable(st)
			return nil
		}
	}

	sub, args, _ := strings.Cut(rest, " ")
	args = strings.TrimSpace(args)
	slug, extra, _ := strings.Cut(args, " ")
	extra = strings.TrimSpace(extra)
	if slugCommands[sub] && slug == "" {
		a.env.Console.Errorf("Error: %s needs a task slug", sub)
		return nil
	}

	switch sub {
	case "list":
		return a.list()
	case "create":
		return a.startDefine(ctx, st, slug, false)
	case "update":
		return a.startDefine(ctx, st, slug, true)
	case "inspect":
		return a.inspect(slug)
	case "script":
		return a.attachScript(st, slug, extra)
	case "run":
		return a.run(ctx, st, slug, extra)
	case "history":
		return a.history(ctx, slug)
	case "delete":
		return a.delete(ctx, slug)
	default:
		a.usage()
		return nil
	}
}

func (a *TaskAction) usage() {
	reg := command.NewRegistry(a.Options()...)
	a.env.Console.Panel("Task commands", strings.Join(reg.HelpLines(), "\n"))
}

func (a *TaskAction) list() error {
	metas, err := a.store.List()
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		a.env.Console.Info("No tasks found")
		return nil
	}
	rows := make([][]string, 0, len(metas))
	for _, m := range metas {
		rows = append(rows, []string{m.Name, m.Slug, m.Description})
	}
	a.env.Console.Table("Tasks", rows, 50)
	return nil
}

// startDefine seeds the authoring thread and enters the definition phase.
func (a *TaskAction) startDefine(ctx context.Context, st *session.State, slug string, mustExist bool) error {
	if !tasks.ValidSlug(slug) {
		a.env.Console.Errorf("Error: invalid task slug '%s' (use lowercase letters, digits, '-' and '_')", slug)
		return nil
	}
	index, err := a.store.Load()
	if err != nil {
		return err
	}
	var existing *tasks.Meta
	if m, ok := index[slug]; ok {
		existing = &m
	} else if mustExist {
		a.env.Console.Errorf("Error: Task with slug '%s' not found", slug)
		return nil
	}
	others := make(map[string]tasks.Meta, len(index))
	for s, m := range index {
		if s != slug {
			others[s] = m
		}
	}

	seed := tasks.DefinitionInstruction(others, a.tools.Definitions(), a.env.systemInfo(ctx)) +
		"\n\n" + tasks.DefineStepInstruction(slug, existing)
	st.EnterTask(slug, []chat.Message{chat.User(seed)})
	a.env.logger().Debug("task definition started", zap.String("slug", slug), zap.Bool("existing", existing != nil))

	a.env.Console.Info(fmt.Sprintf("Task definition step for %q", slug))
	a.env.Console.Panel("Instructions", defineInstructionsPanel)

	opener := "Let me know what you want this task to do"
	if existing != nil {
		a.env.Console.Info("Existing task found:")
		a.env.Console.JSON(existing)
		a.env.Console.Info("Accept proposed task?")
		ok, err := a.env.confirm(false)
		if err != nil {
			return err
		}
		if ok {
			return a.accept(st, *existing)
		}
		opener = "Do you want to update this definition further or accept it as is?"
	}
	st.TaskThread = append(st.TaskThread, chat.Assistant(opener))
	a.env.Console.Assistant(opener)
	return nil
}

// defineTurn sends one user turn of the definition conversation.
func (a *TaskAction) defineTurn(ctx context.Context, input string, st *session.State) error {
	st.TaskThread = append(st.TaskThread, chat.User(input))
	reply, err := a.env.converse(ctx, "Asking", st.TaskThread, config.TaskDefineMaxTokens)
	if err != nil {
		st.TaskThread = st.TaskThread[:len(st.TaskThread)-1]
		return err
	}
	st.TaskThread = append(st.TaskThread, reply)
	a.env.Console.Assistant(reply.Content)

	meta, err := tasks.ExtractMeta(reply.Content)
	if err != nil {
		// no proposal yet; the conversation continues
		return nil
	}
	if meta.Slug != st.TaskSlug {
		a.env.logger().Debug("proposed slug replaced", zap.String("proposed", meta.Slug), zap.String("slug", st.TaskSlug))
		meta.Slug = st.TaskSlug
	}
	a.env.Console.Info("Accept proposed task?")
	ok, err := a.env.confirm(false)
	if err != nil || !ok {
		return err
	}
	return a.accept(st, meta)
}

// accept saves meta and moves on to planning. Validation errors keep the definition phase.
func (a *TaskAction) accept(st *session.State, meta tasks.Meta) error {
	if err := a.store.Save(meta); err != nil {
		if errors.Is(err, tasks.ErrInvalidMeta) || errors.Is(err, tasks.ErrDependencyCycle) {
			a.env.Console.Errorf("Error: %v", err)
			return nil
		}
		return err
	}
	a.env.Console.Success(fmt.Sprintf("Task '%s' saved", meta.Slug))
	st.Mode = session.ModeTaskPlan
	a.finishUnavailable(st)
	return nil
}

// finishUnavailable ends authoring for the phases that do not exist yet.
func (a *TaskAction) finishUnavailable(st *session.State) {
	phase := "planning"
	if st.Mode == session.ModeTaskIterate {
		phase = "iteration"
	}
	slug := st.TaskSlug
	st.ExitTask()
	a.env.Console.Warn(fmt.Sprintf("Task %s is not yet available. Attach a script with `\\task script %s <path>`.", phase, slug))
	a.env.Console.Info("Chat mode enabled")
}

func (a *TaskAction) inspect(slug string) error {
	meta, err := a.store.Get(slug)
	if errors.Is(err, tasks.ErrTaskNotFound) {
		a.env.Console.Errorf("Error: Slug `%s` not found in task list", slug)
		return nil
	}
	if err != nil {
		return err
	}
	src, err := a.store.LoadScript(slug)
	switch {
	case err == nil:
		a.env.Console.Info("Task script")
		a.env.Console.Code("go", src)
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}
	a.env.Console.Info("Task definition")
	a.env.Console.JSON(meta)
	return nil
}

// attachScript stores a script read from path, or the last ```go block of the chat.
func (a *TaskAction) attachScript(st *session.State, slug, path string) error {
	if _, err := a.store.Get(slug); errors.Is(err, tasks.ErrTaskNotFound) {
		a.env.Console.Errorf("Error: Task with slug '%s' not found", slug)
		return nil
	} else if err != nil {
		return err
	}

	var src string
	if path != "" {
		text, err := tools.ReadText(path)
		if err != nil {
			a.env.Console.Errorf("Error: %v", err)
			return nil
		}
		src = text
	} else {
		for i := len(st.Messages) - 1; i >= 0 && src == ""; i-- {
			if st.Messages[i].Role != chat.RoleAssistant {
				continue
			}
			if s, err := tasks.ExtractScript(st.Messages[i].Content); err == nil {
				src = s
			}
		}
		if src == "" {
			a.env.Console.Error("Error: no Go code block found in the chat history")
			return nil
		}
	}

	if err := tasks.CheckScript(src); err != nil {
		a.env.Console.Errorf("Error: %v", err)
		return nil
	}
	if err := a.store.SaveScript(slug, src); err != nil {
		return err
	}
	a.env.Console.Success("Script saved to " + a.store.ScriptPath(slug))
	return nil
}

func (a *TaskAction) run(ctx context.Context, st *session.State, slug, rawInput string) error {
	meta, err := a.store.Get(slug)
	if errors.Is(err, tasks.ErrTaskNotFound) {
		a.env.Console.Errorf("Error: Task with slug '%s' not found", slug)
		return nil
	}
	if err != nil {
		return err
	}

	input := map[string]any{}
	if rawInput != "" {
		if err := json.Unmarshal([]byte(rawInput), &input); err != nil {
			a.env.Console.Errorf("Error: task input must be a JSON object: %v", err)
			return nil
		}
	} else {
		input, err = a.promptInput(meta.InputSchema)
		if err != nil {
			return err
		}
	}

	a.env.Console.Info(fmt.Sprintf("Running task '%s'", slug))
	stop := a.env.Console.Status("Running...")
	out, err := a.runner.Run(ctx, slug, input)
	stop()
	if err != nil {
		a.env.Console.Errorf("Error: task '%s' failed: %v", slug, err)
		return nil
	}

	a.env.Console.Info("Results:")
	a.env.Console.JSON(out)
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	st.Append(chat.User(fmt.Sprintf("Result of task %s:\n%s", slug, data)))
	return nil
}

// promptInput asks for each property of a flat input schema, coercing answers to the declared type.
func (a *TaskAction) promptInput(schema map[string]any) (map[string]any, error) {
	props, _ := schema["properties"].(map[string]any)
	required := map[string]bool{}
	switch req := schema["required"].(type) {
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	case []string:
		for _, s := range req {
			required[s] = true
		}
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	input := make(map[string]any, len(names))
	for _, name := range names {
		prop, _ := props[name].(map[string]any)
		typ, _ := prop["type"].(string)
		label := name
		if desc, _ := prop["description"].(string); desc != "" {
			label += " (" + desc + ")"
		}
		for {
			answer, err := a.env.Prompter.ReadLine(label + ": ")
			if err != nil {
				return nil, err
			}
			answer = strings.TrimSpace(answer)
			if answer == "" && !required[name] {
				break
			}
			v, err := coerceInput(answer, typ)
			if err == nil {
				input[name] = v
				break
			}
			a.env.Console.Errorf("Error: %s must be %s", name, typ)
		}
	}
	return input, nil
}

func coerceInput(answer, typ string) (any, error) {
	switch typ {
	case "integer":
		return strconv.Atoi(answer)
	case "number":
		return strconv.ParseFloat(answer, 64)
	case "boolean":
		return strconv.ParseBool(answer)
	case "array":
		var v []any
		err := json.Unmarshal([]byte(answer), &v)
		return v, err
	default:
		return answer, nil
	}
}

func (a *TaskAction) history(ctx context.Context, slug string) error {
	if a.runLog == nil {
		a.env.Console.Warn("Run history is not available")
		return nil
	}
	runs, err := a.runLog.ListRuns(ctx, slug, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		a.env.Console.Info(fmt.Sprintf("No runs recorded for '%s'", slug))
		return nil
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration.Round(time.Millisecond).String(),
			r.Status,
			r.Error,
		})
	}
	a.env.Console.Table("Runs of "+slug, rows, 60)
	return nil
}

func (a *TaskAction) delete(ctx context.Context, slug string) error {
	err := a.store.Delete(slug)
	var depErr *tasks.DependentError
	switch {
	case errors.As(err, &depErr):
		a.env.Console.Error(depErr.Error())
		if deps, err := a.store.Dependents(slug); err == nil && len(deps) > 1 {
			a.env.Console.Muted(fmt.Sprintf("Tasks depending on '%s': %s", slug, strings.Join(deps, ", ")))
		}
		return nil
	case errors.Is(err, tasks.ErrTaskNotFound):
		a.env.Console.Errorf("Error: Task with slug '%s' not found", slug)
		return nil
	case err != nil:
		return err
	}
	if a.runLog != nil {
		if err := a.runLog.DeleteRuns(ctx, slug); err != nil {
			a.env.logger().Warn("delete task runs", zap.String("slug", slug), zap.Error(err))
		}
	}
	a.env.Console.Success(fmt.Sprintf("Task '%s' deleted successfully", slug))
	return nil
}
