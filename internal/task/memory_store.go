package task

import (
	"context"
	"sync"
	"time"

	xerrors "OpenAgents/internal/errors"
)

// MemoryStore 以内存方式保存任务状态，任务在进程生命周期内不会被删除。
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	now   func() time.Time
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*Task), now: time.Now}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, task *Task) error {
	if task == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	if task.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; ok {
		return ErrTaskConflict
	}
	now := m.now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = task.CreatedAt
	if task.Status == "" {
		task.Status = StatusPending
	}
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

// Get 返回任务副本。
func (m *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return cloneTask(task), nil
}

// Transition 按状态图更新任务。离开 blocked 时清空 BlockedReason，
// 进入 blocked 时记录原因，结果只在提供时覆盖。
func (m *MemoryStore) Transition(_ context.Context, id string, to Status, update Update) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if !CanTransition(task.Status, to) {
		return cloneTask(task), xerrors.Newf(CodeTaskInvalidTransition, "任务 %s 无法从 %s 变更为 %s", id, task.Status, to)
	}
	task.Status = to
	task.BlockedReason = ""
	if to == StatusBlocked {
		task.BlockedReason = update.BlockedReason
	}
	if update.Result != nil {
		task.Result = cloneResult(update.Result)
	}
	task.UpdatedAt = m.now()
	return cloneTask(task), nil
}

// Resume 在同一把锁内完成检查与变更，并发恢复只有一个会成功。
func (m *MemoryStore) Resume(_ context.Context, id, input string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if task.Status != StatusBlocked {
		return cloneTask(task), ErrTaskNotBlocked
	}
	task.Status = StatusRunning
	task.BlockedReason = ""
	task.ResumeInput = input
	task.UpdatedAt = m.now()
	return cloneTask(task), nil
}

// List 返回符合过滤条件的任务。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Task, error) {
	opts.normalize()

	m.mu.RLock()
	results := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		if opts.Match(task) {
			results = append(results, cloneTask(task))
		}
	}
	m.mu.RUnlock()

	return opts.page(results), nil
}

// Stats 统计符合过滤条件的任务数量与更新时间范围，忽略分页。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (TaskStats, error) {
	opts.normalize()

	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := TaskStats{}
	for _, task := range m.tasks {
		if opts.Match(task) {
			stats.add(task)
		}
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
