package storage

import "context"

// RunLog 任务执行历史的持久化接口
// RunLog persists the history of task executions
type RunLog interface {
	RecordRun(ctx context.Context, run TaskRun) (TaskRun, error)
	ListRuns(ctx context.Context, slug string, limit int) ([]TaskRun, error)
	DeleteRuns(ctx context.Context, slug string) error
	Close() error
}
