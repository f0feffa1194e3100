package tasks

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func flatSchema(props ...string) map[string]any {
	p := map[string]any{}
	for _, name := range props {
		p[name] = map[string]any{"type": "string"}
	}
	return map[string]any{"type": "object", "properties": p}
}

func mustSave(t *testing.T, s *Store, m Meta) {
	t.Helper()
	if err := s.Save(m); err != nil {
		t.Fatalf("Save(%s): %v", m.Slug, err)
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "tasks"))
	want := Meta{
		Name:         "Weather",
		Description:  "Current weather",
		Summary:      "Fetches a forecast page and summarises it",
		Slug:         "weather",
		InputSchema:  flatSchema("city"),
		OutputSchema: map[string]any{"type": "object"},
		DependsOn:    []string{},
	}
	mustSave(t, s, want)

	got, err := s.Get("weather")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("meta mismatch (-want +got):\n%s", diff)
	}

	if _, err := os.Stat(filepath.Join(s.Dir(), indexFile)); err != nil {
		t.Fatalf("index.json not written: %v", err)
	}
	if _, err := s.Get("missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("err=%v, want ErrTaskNotFound", err)
	}
}

func TestStoreSaveCanonicalForm(t *testing.T) {
	s := NewStore(t.TempDir())
	mustSave(t, s, Meta{Slug: "base"})
	mustSave(t, s, Meta{Slug: "plain", DependsOn: nil})
	mustSave(t, s, Meta{Slug: "child", DependsOn: []string{" base ", "base", ""}})

	tests := []struct {
		slug string
		deps []string
	}{
		{"plain", []string{}},
		{"child", []string{"base"}},
	}
	for _, tc := range tests {
		got, err := s.Get(tc.slug)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(tc.deps, got.DependsOn); diff != "" {
			t.Errorf("%s depends_on (-want +got):\n%s", tc.slug, diff)
		}
		if got.InputSchema["type"] != "object" || got.OutputSchema["type"] != "object" {
			t.Errorf("%s schemas=%v %v", tc.slug, got.InputSchema, got.OutputSchema)
		}
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(), indexFile))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"depends_on": null`) {
		t.Fatalf("index.json has a null depends_on:\n%s", data)
	}
}

func TestStoreLoadMissingIndexIsEmpty(t *testing.T) {
	s := NewStore(t.TempDir())
	index, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(index) != 0 {
		t.Fatalf("index=%v", index)
	}
}

func TestStoreSaveValidation(t *testing.T) {
	s := NewStore(t.TempDir())
	mustSave(t, s, Meta{Slug: "base"})

	tests := []struct {
		name string
		meta Meta
		want error
	}{
		{"empty slug", Meta{Name: "x"}, ErrInvalidMeta},
		{"bad slug", Meta{Slug: "Has Space"}, ErrInvalidMeta},
		{"unknown dependency", Meta{Slug: "a", DependsOn: []string{"nope"}}, ErrInvalidMeta},
		{"self dependency", Meta{Slug: "a", DependsOn: []string{"a"}}, ErrDependencyCycle},
		{"update with unknown dependency", Meta{Slug: "base", DependsOn: []string{"top"}}, ErrInvalidMeta},
		{
			"nested input object",
			Meta{Slug: "a", InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"opts": map[string]any{"type": "object"}},
			}},
			ErrInvalidMeta,
		},
		{"input not object", Meta{Slug: "a", InputSchema: map[string]any{"type": "string"}}, ErrInvalidMeta},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Save(tc.meta)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err=%v, want %v", err, tc.want)
			}
		})
	}
}

func TestStoreSaveRejectsCycle(t *testing.T) {
	s := NewStore(t.TempDir())
	mustSave(t, s, Meta{Slug: "a"})
	mustSave(t, s, Meta{Slug: "b", DependsOn: []string{"a"}})
	mustSave(t, s, Meta{Slug: "c", DependsOn: []string{"b"}})

	err := s.Save(Meta{Slug: "a", DependsOn: []string{"c"}})
	if !errors.Is(err, ErrDependencyCycle) {
		t.Fatalf("err=%v, want ErrDependencyCycle", err)
	}
	got, _ := s.Get("a")
	if len(got.DependsOn) != 0 {
		t.Fatalf("rejected save must not change the index: %+v", got)
	}
}

func TestStoreDeleteRefusedWhileDependents(t *testing.T) {
	s := NewStore(t.TempDir())
	mustSave(t, s, Meta{Slug: "base"})
	mustSave(t, s, Meta{Slug: "zeta", DependsOn: []string{"base"}})
	mustSave(t, s, Meta{Slug: "alpha", DependsOn: []string{"base"}})
	if err := s.SaveScript("base", "package main\n"); err != nil {
		t.Fatal(err)
	}

	err := s.Delete("base")
	var depErr *DependentError
	if !errors.As(err, &depErr) {
		t.Fatalf("err=%v, want *DependentError", err)
	}
	if !errors.Is(err, ErrHasDependents) {
		t.Fatalf("DependentError must wrap ErrHasDependents")
	}
	if depErr.Dependent != "alpha" {
		t.Fatalf("dependent=%q, want alpha", depErr.Dependent)
	}
	if got := err.Error(); got != "Cannot delete task 'base' because task 'alpha' depends on it" {
		t.Fatalf("message=%q", got)
	}
	if _, err := s.Get("base"); err != nil {
		t.Fatalf("base removed from index: %v", err)
	}
	if _, err := s.LoadScript("base"); err != nil {
		t.Fatalf("base script removed: %v", err)
	}

	deps, err := s.Dependents("base")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"alpha", "zeta"}, deps); diff != "" {
		t.Fatalf("dependents (-want +got):\n%s", diff)
	}
}

func TestStoreDelete(t *testing.T) {
	s := NewStore(t.TempDir())
	mustSave(t, s, Meta{Slug: "a"})
	mustSave(t, s, Meta{Slug: "b"})
	if err := s.SaveScript("a", "package main\n"); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadScript("a"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("script still present: %v", err)
	}
	// b has no script
	if err := s.Delete("b"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("b"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("err=%v, want ErrTaskNotFound", err)
	}
	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("list=%v", list)
	}
}

func TestStoreListSorted(t *testing.T) {
	s := NewStore(t.TempDir())
	for _, slug := range []string{"c", "a", "b"} {
		mustSave(t, s, Meta{Slug: slug})
	}
	list, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, m := range list {
		got = append(got, m.Slug)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}
