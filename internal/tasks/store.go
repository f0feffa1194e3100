package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const indexFile = "index.json"

// Store 任务目录：index.json 保存元数据，<slug>.go 保存脚本
// Store is the tasks directory: metadata in index.json, one <slug>.go script per task
type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) ScriptPath(slug string) string {
	return filepath.Join(s.dir, slug+".go")
}

// Load returns the whole index; a missing index is an empty one.
func (s *Store) Load() (map[string]Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (map[string]Meta, error) {
	index := map[string]Meta{}
	if err := readJSONFile(filepath.Join(s.dir, indexFile), &index); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]Meta{}, nil
		}
		return nil, fmt.Errorf("load task index: %w", err)
	}
	for slug, m := range index {
		if m.Slug == "" {
			m.Slug = slug
		}
		m.normalize()
		index[slug] = m
	}
	return index, nil
}

// List returns every task sorted by slug.
func (s *Store) List() ([]Meta, error) {
	index, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := make([]Meta, 0, len(index))
	for _, m := range index {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (s *Store) Get(slug string) (Meta, error) {
	index, err := s.Load()
	if err != nil {
		return Meta{}, err
	}
	m, ok := index[slug]
	if !ok {
		return Meta{}, fmt.Errorf("%w: %s", ErrTaskNotFound, slug)
	}
	return m, nil
}

// Save validates meta against the index and writes it, replacing any task with the same slug.
func (s *Store) Save(meta Meta) error {
	meta.normalize()
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.load()
	if err != nil {
		return err
	}
	if err := validateIndex(meta, index); err != nil {
		return err
	}
	index[meta.Slug] = meta
	return s.writeIndex(index)
}

func (s *Store) SaveScript(slug, src string) error {
	if !ValidSlug(slug) {
		return fmt.Errorf("%w: slug %q", ErrInvalidMeta, slug)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create tasks dir: %w", err)
	}
	return writeFileAtomic(s.ScriptPath(slug), []byte(src))
}

// LoadScript returns the script source, or fs.ErrNotExist when the task has none yet.
func (s *Store) LoadScript(slug string) (string, error) {
	data, err := os.ReadFile(s.ScriptPath(slug))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Dependents lists the tasks whose depends_on names slug, sorted.
func (s *Store) Dependents(slug string) ([]string, error) {
	index, err := s.Load()
	if err != nil {
		return nil, err
	}
	return dependentsOf(index, slug), nil
}

func dependentsOf(index map[string]Meta, slug string) []string {
	var out []string
	for other, m := range index {
		for _, dep := range m.DependsOn {
			if dep == slug {
				out = append(out, other)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Delete removes a task unless another task depends on it.
func (s *Store) Delete(slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := index[slug]; !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, slug)
	}
	if deps := dependentsOf(index, slug); len(deps) > 0 {
		return &DependentError{Slug: slug, Dependent: deps[0]}
	}
	delete(index, slug)
	if err := s.writeIndex(index); err != nil {
		return err
	}
	if err := os.Remove(s.ScriptPath(slug)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove task script: %w", err)
	}
	return nil
}

func (s *Store) writeIndex(index map[string]Meta) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create tasks dir: %w", err)
	}
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("encode task index: %w", err)
	}
	return writeFileAtomic(filepath.Join(s.dir, indexFile), append(data, '\n'))
}

func readJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
