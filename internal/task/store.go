package task

import (
	"context"

	"OpenAgents/internal/agent"
)

// Update 描述一次状态变更附带的数据。
type Update struct {
	BlockedReason string
	Result        *agent.Result
}

// Store 抽象了任务状态的保存接口。
type Store interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	// Transition 在状态图允许时把任务移动到 to，并返回变更后的副本。
	Transition(ctx context.Context, id string, to Status, update Update) (*Task, error)
	// Resume 原子地检查任务处于 blocked 并将其置为 running。
	Resume(ctx context.Context, id, input string) (*Task, error)
	List(ctx context.Context, opts ListOptions) ([]*Task, error)
	Stats(ctx context.Context, opts ListOptions) (TaskStats, error)
	Close() error
}
