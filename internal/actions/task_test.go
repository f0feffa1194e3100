package actions

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ask/internal/chat"
	"ask/internal/config"
	"ask/internal/session"
	"ask/internal/storage"
	"ask/internal/tasks"
	"ask/internal/tools"
)

const greetScript = `package main

func Run(input map[string]any, deps map[string]func(map[string]any) (map[string]any, error), tools map[string]func(map[string]any) (any, error)) (map[string]any, error) {
	name, _ := input["name"].(string)
	return map[string]any{"greeting": "hello " + name}, nil
}
`

type taskFixture struct {
	*testEnv
	store  *tasks.Store
	runLog *storage.SQLiteStore
	action *TaskAction
}

func newTaskFixture(t *testing.T, backend *fakeBackend, answers ...string) *taskFixture {
	t.Helper()
	te := newTestEnv(t, backend, answers...)
	dir := t.TempDir()
	store := tasks.NewStore(filepath.Join(dir, "tasks"))
	runLog, err := storage.NewSQLiteStore(filepath.Join(dir, "ask.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = runLog.Close() })
	registry := tools.NewRegistry(tools.SystemInfoTool{})
	runner := tasks.NewRunner(store, registry, tasks.RunnerOptions{Timeout: 5 * time.Second, RunLog: runLog})
	action := NewTaskAction(te.env, TaskOptions{Store: store, Runner: runner, Tools: registry, RunLog: runLog})
	return &taskFixture{testEnv: te, store: store, runLog: runLog, action: action}
}

func greetMeta(slug string, deps ...string) tasks.Meta {
	return tasks.Meta{
		Name:        "Greet",
		Description: "Greets someone by name",
		Slug:        slug,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"name": map[string]any{"type": "string"}},
			"required":   []any{"name"},
		},
		OutputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"greeting": map[string]any{"type": "string"}},
			"required":   []any{"greeting"},
		},
		DependsOn: deps,
	}
}

func (f *taskFixture) mustSave(t *testing.T, meta tasks.Meta, script string) {
	t.Helper()
	if err := f.store.Save(meta); err != nil {
		t.Fatal(err)
	}
	if script != "" {
		if err := f.store.SaveScript(meta.Slug, script); err != nil {
			t.Fatal(err)
		}
	}
}

func TestTaskListEmptyAndFilled(t *testing.T) {
	f := newTaskFixture(t, nil)
	st := session.New()
	if err := dispatch(t, `\task list`, st, f.action); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.out.String(), "No tasks found") {
		t.Fatalf("output=%q", f.out.String())
	}

	f.mustSave(t, greetMeta("greet"), "")
	f.out.Reset()
	if err := dispatch(t, `\task list`, st, f.action); err != nil {
		t.Fatal(err)
	}
	out := f.out.String()
	if !strings.Contains(out, "Tasks") || !strings.Contains(out, "Greet") || !strings.Contains(out, "Greets someone by name") {
		t.Fatalf("output=%q", out)
	}
}

func TestTaskCreateDefineAndAccept(t *testing.T) {
	proposal := "Here it is:\n\n```json\n" + `{
  "name": "Weather",
  "description": "Current weather for a city",
  "summary": "weather",
  "slug": "weather",
  "input_schema": {"type": "object", "properties": {"city": {"type": "string"}}, "required": ["city"]},
  "output_schema": {"type": "object"},
  "depends_on": []
}` + "\n```"
	f := newTaskFixture(t, &fakeBackend{replies: []string{proposal}}, "y")
	chatAction := NewChatAction(f.env)
	st := session.New()

	if err := dispatch(t, `\task create weather`, st, f.action, chatAction); err != nil {
		t.Fatal(err)
	}
	if st.Mode != session.ModeTaskDefine || st.TaskSlug != "weather" || len(st.TaskThread) != 2 {
		t.Fatalf("state=%+v", st)
	}
	if !strings.Contains(st.TaskThread[0].Content, `task with slug "weather"`) ||
		!strings.Contains(st.TaskThread[0].Content, "system_info") {
		t.Fatalf("seed=%q", st.TaskThread[0].Content)
	}
	if !strings.Contains(f.out.String(), `Task definition step for "weather"`) {
		t.Fatalf("output=%q", f.out.String())
	}

	// define-mode input goes to the private thread, not the chat history
	if err := dispatch(t, "weather for a city", st, f.action, chatAction); err != nil {
		t.Fatal(err)
	}
	if f.backend.maxTokens[0] != config.TaskDefineMaxTokens {
		t.Fatalf("max tokens=%d", f.backend.maxTokens[0])
	}
	if len(f.backend.conversed[0]) != 3 || f.backend.conversed[0][2].Content != "weather for a city" {
		t.Fatalf("thread sent=%v", f.backend.conversed[0])
	}
	if len(st.Messages) != 0 {
		t.Fatalf("chat history touched: %v", st.Messages)
	}
	meta, err := f.store.Get("weather")
	if err != nil {
		t.Fatal(err)
	}
	if meta.Name != "Weather" {
		t.Fatalf("meta=%+v", meta)
	}
	if st.Mode != session.ModeChat || st.TaskThread != nil {
		t.Fatalf("state after accept=%+v", st)
	}
	out := f.out.String()
	for _, want := range []string{"Accept proposed task?", "Task 'weather' saved", "not yet available"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if f.prompter.prompts[0] != "Enter y/N: " {
		t.Fatalf("prompt=%q", f.prompter.prompts[0])
	}
}

func TestTaskDefineRejectedProposalStaysInDefine(t *testing.T) {
	f := newTaskFixture(t, &fakeBackend{replies: []string{"Tell me more about the city."}})
	st := session.New()
	st.EnterTask("weather", []chat.Message{chat.User("seed")})

	if err := dispatch(t, "weather", st, f.action); err != nil {
		t.Fatal(err)
	}
	if st.Mode != session.ModeTaskDefine || len(st.TaskThread) != 3 {
		t.Fatalf("state=%+v", st)
	}
	if len(f.prompter.prompts) != 0 {
		t.Fatal("no proposal should not ask for acceptance")
	}
}

func TestTaskUpdateAcceptsExistingWithoutModel(t *testing.T) {
	f := newTaskFixture(t, &fakeBackend{}, "y")
	f.mustSave(t, greetMeta("greet"), "")
	st := session.New()

	if err := dispatch(t, `\task update greet`, st, f.action); err != nil {
		t.Fatal(err)
	}
	if len(f.backend.conversed) != 0 {
		t.Fatal("backend should not be called")
	}
	if st.Mode != session.ModeChat {
		t.Fatalf("mode=%s", st.Mode)
	}
	if !strings.Contains(f.out.String(), "Existing task found:") {
		t.Fatalf("output=%q", f.out.String())
	}

	f.out.Reset()
	if err := dispatch(t, `\task update nope`, st, f.action); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.out.String(), "Error: Task with slug 'nope' not found") {
		t.Fatalf("output=%q", f.out.String())
	}
}

func TestTaskPlanPhaseIsUnavailable(t *testing.T) {
	f := newTaskFixture(t, nil)
	st := session.New()
	st.EnterTask("weather", nil)
	st.Mode = session.ModeTaskIterate

	if err := dispatch(t, "make it faster", st, f.action); err != nil {
		t.Fatal(err)
	}
	if st.Mode != session.ModeChat || st.TaskSlug != "" {
		t.Fatalf("state=%+v", st)
	}
	if !strings.Contains(f.out.String(), "Task iteration is not yet available") {
		t.Fatalf("output=%q", f.out.String())
	}
}

func TestTaskDeleteRefusedWithDependents(t *testing.T) {
	f := newTaskFixture(t, nil)
	f.mustSave(t, greetMeta("base"), greetScript)
	f.mustSave(t, greetMeta("top", "base"), "")
	f.mustSave(t, greetMeta("side", "base"), "")
	st := session.New()

	if err := dispatch(t, `\task delete base`, st, f.action); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Cannot delete task 'base' because task 'side' depends on it",
		"Tasks depending on 'base': side, top",
	} {
		if !strings.Contains(f.out.String(), want) {
			t.Fatalf("output missing %q: %q", want, f.out.String())
		}
	}
	if _, err := f.store.LoadScript("base"); err != nil {
		t.Fatalf("script removed: %v", err)
	}

	for _, slug := range []string{"top", "side", "base"} {
		if err := dispatch(t, `\task delete `+slug, st, f.action); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(f.out.String(), "Task '"+slug+"' deleted successfully") {
			t.Fatalf("output=%q", f.out.String())
		}
	}
}

func TestTaskRunInlineAndPrompted(t *testing.T) {
	f := newTaskFixture(t, nil, "Grace")
	f.mustSave(t, greetMeta("greet"), greetScript)
	st := session.New()

	if err := dispatch(t, `\task run greet {"name": "Ada"}`, st, f.action); err != nil {
		t.Fatal(err)
	}
	want := "Result of task greet:\n{\n  \"greeting\": \"hello Ada\"\n}"
	if len(st.Messages) != 1 || st.Messages[0].Content != want {
		t.Fatalf("messages=%v", st.Messages)
	}

	if err := dispatch(t, `\task run greet`, st, f.action); err != nil {
		t.Fatal(err)
	}
	if f.prompter.prompts[0] != "name: " {
		t.Fatalf("prompt=%q", f.prompter.prompts[0])
	}
	if !strings.Contains(st.Messages[1].Content, "hello Grace") {
		t.Fatalf("messages=%v", st.Messages)
	}
	if !strings.Contains(f.out.String(), "Running task 'greet'") || !strings.Contains(f.out.String(), "Results:") {
		t.Fatalf("output=%q", f.out.String())
	}

	if err := dispatch(t, `\task history greet`, st, f.action); err != nil {
		t.Fatal(err)
	}
	if strings.Count(f.out.String(), storage.RunStatusOK) < 2 {
		t.Fatalf("history output=%q", f.out.String())
	}
}

func TestTaskRunFailuresAreReported(t *testing.T) {
	f := newTaskFixture(t, nil)
	f.mustSave(t, greetMeta("greet"), greetScript)
	f.mustSave(t, greetMeta("noscript"), "")
	st := session.New()

	tests := []struct {
		input string
		want  string
	}{
		{`\task run missing {}`, "Error: Task with slug 'missing' not found"},
		{`\task run greet {"name": 3}`, "Error: task 'greet' failed"},
		{`\task run greet [1]`, "Error: task input must be a JSON object"},
		{`\task run noscript {"name": "x"}`, "Error: task 'noscript' failed"},
		{`\task inspect nope`, "Error: Slug `nope` not found in task list"},
		{`\task run`, "Error: run needs a task slug"},
	}
	for _, tc := range tests {
		f.out.Reset()
		if err := dispatch(t, tc.input, st, f.action); err != nil {
			t.Fatalf("%s: %v", tc.input, err)
		}
		if !strings.Contains(f.out.String(), tc.want) {
			t.Errorf("%s: output=%q, want %q", tc.input, f.out.String(), tc.want)
		}
	}
	if len(st.Messages) != 0 {
		t.Fatalf("failed runs should not touch history: %v", st.Messages)
	}
}

func TestTaskScriptFromLastReplyAndInspect(t *testing.T) {
	f := newTaskFixture(t, nil)
	f.mustSave(t, greetMeta("greet"), "")
	st := session.New()
	st.Append(chat.User("write it"), chat.Assistant("Sure:\n\n```go\n"+greetScript+"```\n"))

	if err := dispatch(t, `\task script greet`, st, f.action); err != nil {
		t.Fatal(err)
	}
	src, err := f.store.LoadScript("greet")
	if err != nil || !strings.Contains(src, "hello ") {
		t.Fatalf("script=%q err=%v", src, err)
	}

	f.out.Reset()
	if err := dispatch(t, `\task inspect greet`, st, f.action); err != nil {
		t.Fatal(err)
	}
	out := f.out.String()
	for _, want := range []string{"Task script", "```go", "Task definition", `"slug": "greet"`} {
		if !strings.Contains(out, want) {
			t.Errorf("inspect output missing %q", want)
		}
	}

	st.Append(chat.Assistant("```go\nfunc Run() {}\n```"))
	f.out.Reset()
	if err := dispatch(t, `\task script greet`, st, f.action); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.out.String(), "Error:") {
		t.Fatalf("bad script accepted: %q", f.out.String())
	}
}
