package tasks

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrHasDependents   = errors.New("task has dependents")
	ErrDependencyCycle = errors.New("task dependency cycle")
	ErrInvalidMeta     = errors.New("invalid task metadata")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Meta is the persisted description of a task, keyed by Slug in index.json.
type Meta struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Summary      string         `json:"summary"`
	Slug         string         `json:"slug"`
	InputSchema  map[string]any `json:"input_schema"`
	OutputSchema map[string]any `json:"output_schema"`
	// DependsOn is never nil once saved; no dependencies is stored as [].
	DependsOn []string `json:"depends_on"`
}

// DependentError reports a delete refused because another task still depends on Slug.
type DependentError struct {
	Slug      string
	Dependent string
}

func (e *DependentError) Error() string {
	return fmt.Sprintf("Cannot delete task '%s' because task '%s' depends on it", e.Slug, e.Dependent)
}

func (e *DependentError) Unwrap() error { return ErrHasDependents }

// ValidSlug reports whether slug can name a task and its script file.
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// normalize fills the canonical form written to index.json: default schemas,
// trimmed and deduplicated dependencies, an empty (not nil) dependency list.
func (m *Meta) normalize() {
	m.Slug = strings.TrimSpace(m.Slug)
	if m.InputSchema == nil {
		m.InputSchema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	if m.OutputSchema == nil {
		m.OutputSchema = map[string]any{"type": "object"}
	}
	seen := make(map[string]bool, len(m.DependsOn))
	deps := make([]string, 0, len(m.DependsOn))
	for _, d := range m.DependsOn {
		d = strings.TrimSpace(d)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		deps = append(deps, d)
	}
	m.DependsOn = deps
}

// checkFlatInput enforces an object input schema whose properties are not objects.
func checkFlatInput(schema map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	if t, ok := schema["type"]; ok && !typeIncludes(t, "object") {
		return fmt.Errorf("%w: input_schema must be of type object", ErrInvalidMeta)
	}
	props, _ := schema["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		prop, _ := props[name].(map[string]any)
		if prop == nil {
			continue
		}
		if typeIncludes(prop["type"], "object") {
			return fmt.Errorf("%w: input property %q is a nested object", ErrInvalidMeta, name)
		}
		if _, nested := prop["properties"]; nested {
			return fmt.Errorf("%w: input property %q is a nested object", ErrInvalidMeta, name)
		}
	}
	return nil
}

func typeIncludes(t any, want string) bool {
	switch v := t.(type) {
	case string:
		return v == want
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if s == want {
				return true
			}
		}
	}
	return false
}

// validateIndex checks meta against the other tasks it will be stored with.
func validateIndex(meta Meta, index map[string]Meta) error {
	if meta.Slug == "" {
		return fmt.Errorf("%w: slug is required", ErrInvalidMeta)
	}
	if !ValidSlug(meta.Slug) {
		return fmt.Errorf("%w: slug %q must match %s", ErrInvalidMeta, meta.Slug, slugPattern.String())
	}
	if err := checkFlatInput(meta.InputSchema); err != nil {
		return err
	}
	for _, dep := range meta.DependsOn {
		if dep == meta.Slug {
			return fmt.Errorf("%w: task %q cannot depend on itself", ErrDependencyCycle, meta.Slug)
		}
		if _, ok := index[dep]; !ok {
			return fmt.Errorf("%w: unknown dependency %q", ErrInvalidMeta, dep)
		}
	}

	graph := make(map[string][]string, len(index)+1)
	for slug, m := range index {
		graph[slug] = m.DependsOn
	}
	graph[meta.Slug] = meta.DependsOn
	if path := findCycle(graph, meta.Slug); path != nil {
		return fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(path, " -> "))
	}
	return nil
}

// findCycle returns the first cycle reachable from start, or nil.
func findCycle(graph map[string][]string, start string) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(graph))
	var stack []string
	var walk func(string) []string
	walk = func(slug string) []string {
		switch state[slug] {
		case visiting:
			for i, s := range stack {
				if s == slug {
					return append(append([]string{}, stack[i:]...), slug)
				}
			}
			return []string{slug, slug}
		case done:
			return nil
		}
		state[slug] = visiting
		stack = append(stack, slug)
		for _, dep := range graph[slug] {
			if cycle := walk(dep); cycle != nil {
				return cycle
			}
		}
		stack = stack[:len(stack)-1]
		state[slug] = done
		return nil
	}
	return walk(start)
}
