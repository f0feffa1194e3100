package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore 基于 SQLite (WAL 模式) 的任务执行日志
// SQLiteStore is the task run log backed by SQLite in WAL mode
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore 创建并初始化 SQLite 数据库
// NewSQLiteStore creates and initializes a SQLite database
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// 启用 WAL 模式和优化 PRAGMA / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS task_runs (
		id          TEXT PRIMARY KEY,
		slug        TEXT NOT NULL,
		input       TEXT NOT NULL DEFAULT '{}',
		output      TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		started_at  TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_task_runs_slug ON task_runs(slug, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close 关闭数据库连接 / Close the database connection
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordRun 写入一条执行记录；缺省 ID 与开始时间会被补全
// RecordRun stores one run; a missing ID or start time is filled in
func (s *SQLiteStore) RecordRun(ctx context.Context, run TaskRun) (TaskRun, error) {
	if strings.TrimSpace(run.Slug) == "" {
		return TaskRun{}, fmt.Errorf("task run slug is empty")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunStatusOK
	}
	if run.Input == "" {
		run.Input = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_runs (id, slug, input, output, status, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Slug, run.Input, run.Output, run.Status, run.Error,
		run.StartedAt.UTC().Format(time.RFC3339Nano), run.Duration.Milliseconds(),
	)
	if err != nil {
		return TaskRun{}, fmt.Errorf("insert task run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs of slug, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, slug string, limit int) ([]TaskRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slug, input, output, status, error, started_at, duration_ms
		FROM task_runs WHERE slug = ?
		ORDER BY started_at DESC LIMIT ?`, slug, limit)
	if err != nil {
		return nil, fmt.Errorf("query task runs: %w", err)
	}
	defer rows.Close()

	var runs []TaskRun
	for rows.Next() {
		var (
			run       TaskRun
			startedAt string
			durMS     int64
		)
		if err := rows.Scan(&run.ID, &run.Slug, &run.Input, &run.Output, &run.Status, &run.Error, &startedAt, &durMS); err != nil {
			return nil, fmt.Errorf("scan task run: %w", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		run.Duration = time.Duration(durMS) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRuns removes the history of slug.
func (s *SQLiteStore) DeleteRuns(ctx context.Context, slug string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_runs WHERE slug = ?`, slug)
	if err != nil {
		return fmt.Errorf("delete task runs: %w", err)
	}
	return nil
}
