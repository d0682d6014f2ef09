package task

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"OpenAgents/internal/agent"
	xerrors "OpenAgents/internal/errors"
)

// Orchestrator 负责任务的创建、查询与恢复，执行交给 Processor。
type Orchestrator struct {
	store     Store
	processor *Processor
	newID     func() string
}

// NewOrchestrator 构造编排器。
func NewOrchestrator(store Store, processor *Processor) *Orchestrator {
	return &Orchestrator{store: store, processor: processor, newID: uuid.NewString}
}

// Submit 同步创建 pending 任务并在后台开始执行，立即返回。
func (o *Orchestrator) Submit(ctx context.Context, goal string) (*Task, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, xerrors.New(CodeTaskValidation, "goal is required")
	}
	if o.store == nil || o.processor == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化")
	}

	task := &Task{
		ID:      o.newID(),
		TraceID: o.newID(),
		Goal:    goal,
		Status:  StatusPending,
	}
	if err := o.store.Create(ctx, task); err != nil {
		return nil, err
	}
	created, err := o.store.Get(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	o.processor.record(ctx, created, nil)
	// 后台运行不随请求结束而取消。
	o.processor.Start(context.WithoutCancel(ctx), created, created.Goal, false)
	return created, nil
}

// Status 返回任务的当前状态副本。
func (o *Orchestrator) Status(ctx context.Context, id string) (*Task, error) {
	if o.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return o.store.Get(ctx, id)
}

// Result 返回已结束任务的结果。未结束时返回 TASK_NOT_FINISHED，
// 错误的 status 元数据携带当前状态。
func (o *Orchestrator) Result(ctx context.Context, id string) (*agent.Result, error) {
	task, err := o.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	if !IsTerminal(task.Status) {
		return nil, xerrors.New(CodeTaskNotFinished, "Task is not finished yet",
			xerrors.WithMetadata("status", string(task.Status)))
	}
	if task.Result == nil {
		return nil, ErrTaskResultUnavailable
	}
	return task.Result, nil
}

// Resume 为 blocked 任务补充输入并重新执行。任务不存在或未阻塞时不做任何变更。
func (o *Orchestrator) Resume(ctx context.Context, id, input string) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return xerrors.New(CodeTaskValidation, "input is required")
	}
	if o.store == nil || o.processor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化")
	}
	task, err := o.store.Resume(ctx, id, input)
	if err != nil {
		return err
	}
	o.processor.record(ctx, task, nil)
	o.processor.Start(context.WithoutCancel(ctx), task, ResumedGoal(task.Goal, input), true)
	return nil
}

// List 返回符合过滤条件的任务列表。
func (o *Orchestrator) List(ctx context.Context, opts ...ListOption) ([]*Task, error) {
	if o.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return o.store.List(ctx, buildListOptions(opts))
}

// Stats 返回符合过滤条件的任务统计信息。
func (o *Orchestrator) Stats(ctx context.Context, opts ...ListOption) (TaskStats, error) {
	if o.store == nil {
		return TaskStats{}, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return o.store.Stats(ctx, buildListOptions(opts))
}

// Wait 等待所有后台运行结束。
func (o *Orchestrator) Wait() {
	if o.processor != nil {
		o.processor.Wait()
	}
}

// Close 等待后台运行结束后释放存储与事件资源。
func (o *Orchestrator) Close() error {
	o.Wait()
	var sinkErr error
	if o.processor != nil && o.processor.sink != nil {
		sinkErr = o.processor.sink.Close()
	}
	if o.store != nil {
		if err := o.store.Close(); err != nil {
			return err
		}
	}
	return sinkErr
}
