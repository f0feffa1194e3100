package storage

import "time"

const (
	RunStatusOK     = "ok"
	RunStatusFailed = "failed"
)

// TaskRun 一次任务执行记录
// TaskRun records a single task execution
type TaskRun struct {
	ID        string        `json:"id"`
	Slug      string        `json:"slug"`
	Input     string        `json:"input"`
	Output    string        `json:"output"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}
