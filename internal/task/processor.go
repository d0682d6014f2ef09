package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"OpenAgents/internal/agent"
	xerrors "OpenAgents/internal/errors"
	"OpenAgents/internal/observability/events"
	"OpenAgents/internal/observability/metrics"
	"OpenAgents/pkg/logger"
)

// Runner 定义了处理器所需的 Agent 能力，*agent.Runtime 满足该接口。
type Runner interface {
	Run(ctx context.Context, task agent.Task) (*agent.Result, error)
}

// Processor 负责在后台执行任务：先经过澄清门，再交给 Agent 运行时。
type Processor struct {
	store    Store
	gate     *Gate
	runner   Runner
	sink     events.Sink
	skillDir string
	logger   *slog.Logger
	audit    *slog.Logger
	wg       sync.WaitGroup
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定运行日志输出。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = l
	}
}

// WithAuditLogger 指定状态变更日志的输出，默认为 logger.Audit()。
func WithAuditLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.audit = l
	}
}

// WithEventSink 配置状态变更事件的投递目标。
func WithEventSink(sink events.Sink) ProcessorOption {
	return func(p *Processor) {
		p.sink = sink
	}
}

// WithSkillDir 指定每次运行使用的技能目录，为空时使用运行时默认值。
func WithSkillDir(dir string) ProcessorOption {
	return func(p *Processor) {
		p.skillDir = dir
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(store Store, gate *Gate, runner Runner, opts ...ProcessorOption) *Processor {
	p := &Processor{store: store, gate: gate, runner: runner}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = logger.Named("task")
	}
	if p.audit == nil {
		p.audit = logger.Audit()
	}
	return p
}

// Start 在后台协程中执行任务。resumed 为 true 时任务已由 Resume 置为 running。
func (p *Processor) Start(ctx context.Context, task *Task, goal string, resumed bool) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, task, goal, resumed)
	}()
}

// Wait 等待所有后台运行结束。
func (p *Processor) Wait() {
	p.wg.Wait()
}

func (p *Processor) run(ctx context.Context, task *Task, goal string, resumed bool) {
	defer func() {
		if r := recover(); r != nil {
			p.fail(ctx, task, fmt.Errorf("任务执行发生 panic: %v", r))
		}
	}()
	if err := p.execute(ctx, task, goal, resumed); err != nil {
		p.fail(ctx, task, err)
	}
}

func (p *Processor) execute(ctx context.Context, task *Task, goal string, resumed bool) error {
	if p.store == nil || p.gate == nil || p.runner == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	if !resumed {
		if _, err := p.transition(ctx, task.ID, StatusRunning, Update{}); err != nil {
			return err
		}
	}

	decision, err := p.gate.Decide(ctx, goal)
	if err != nil {
		return err
	}
	if decision.NeedsClarification() {
		_, err := p.transition(ctx, task.ID, StatusBlocked, Update{BlockedReason: decision.Question})
		return err
	}

	result, err := p.runner.Run(ctx, agent.Task{
		TaskID:   task.ID,
		TraceID:  task.TraceID,
		Goal:     goal,
		SkillDir: p.skillDir,
	})
	if err != nil {
		return err
	}
	if result == nil {
		return xerrors.New(CodeTaskResultUnavailable, "运行时未返回结果")
	}
	next := StatusFailed
	if result.Status == agent.StatusCompleted {
		next = StatusCompleted
	}
	_, err = p.transition(ctx, task.ID, next, Update{Result: result})
	return err
}

// fail 将任务标记为 failed，错误只写入日志，不进入对外结果。
func (p *Processor) fail(ctx context.Context, task *Task, cause error) {
	if p.store == nil {
		p.logger.Error("任务失败但存储未配置", slog.String("task_id", task.ID), slog.Any("error", cause))
		return
	}
	updated, err := p.store.Transition(ctx, task.ID, StatusFailed, Update{})
	if err != nil {
		p.logger.Error("标记任务失败状态出错",
			slog.String("task_id", task.ID),
			slog.Any("error", err),
			slog.String("cause", cause.Error()),
		)
		return
	}
	p.record(ctx, updated, cause)
}

func (p *Processor) transition(ctx context.Context, id string, to Status, update Update) (*Task, error) {
	updated, err := p.store.Transition(ctx, id, to, update)
	if err != nil {
		return nil, err
	}
	p.record(ctx, updated, nil)
	return updated, nil
}

// record 为一次状态变更写审计日志、计数并发布事件。
func (p *Processor) record(ctx context.Context, task *Task, cause error) {
	attrs := []any{
		slog.String("task_id", task.ID),
		slog.String("trace_id", task.TraceID),
		slog.String("status", string(task.Status)),
	}
	if task.BlockedReason != "" {
		attrs = append(attrs, slog.String("blocked_reason", task.BlockedReason))
	}
	event := events.Event{
		Type:          events.TypeTaskTransition,
		TaskID:        task.ID,
		TraceID:       task.TraceID,
		Status:        string(task.Status),
		BlockedReason: task.BlockedReason,
		OccurredAt:    task.UpdatedAt,
	}
	if cause != nil {
		attrs = append(attrs,
			slog.String("error", cause.Error()),
			slog.String("code", string(xerrors.CodeOf(cause))),
			slog.Bool("retryable", xerrors.RetryableError(cause)),
		)
		// 任务失败至少记为 warn，级别随错误严重程度上调。
		p.audit.Log(ctx, max(xerrors.LevelOf(cause), slog.LevelWarn), "任务状态变更", attrs...)
	} else {
		p.audit.InfoContext(ctx, "任务状态变更", attrs...)
	}
	metrics.ObserveTaskTransition(string(task.Status))

	if p.sink == nil {
		return
	}
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.sink.Publish(publishCtx, event); err != nil {
		p.logger.Warn("任务事件发布失败",
			slog.String("task_id", task.ID),
			slog.String("status", string(task.Status)),
			slog.Any("error", err),
		)
	}
}
