// Package events publishes task lifecycle events to pluggable sinks such as
// the structured log, a Redis channel or a RabbitMQ exchange.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"OpenAgents/pkg/logger"
)

// TypeTaskTransition 是任务状态变更事件的类型。
const TypeTaskTransition = "task.transition"

// Event 描述一次任务状态变更。
type Event struct {
	Type          string    `json:"type"`
	TaskID        string    `json:"taskId"`
	TraceID       string    `json:"traceId"`
	Status        string    `json:"status"`
	BlockedReason string    `json:"blockedReason,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Marshal 将事件编码为 JSON。
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Sink 负责把事件投递到某个下游。
type Sink interface {
	Name() string
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Fanout 将事件广播给多个 Sink，单个 Sink 失败不影响其他 Sink。
type Fanout struct {
	sinks []Sink
}

// NewFanout 创建 Fanout，nil Sink 会被忽略。
func NewFanout(sinks ...Sink) *Fanout {
	set := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			set = append(set, s)
		}
	}
	return &Fanout{sinks: set}
}

// Name 返回 fanout。
func (f *Fanout) Name() string { return "fanout" }

// Len 返回已注册的 Sink 数量。
func (f *Fanout) Len() int {
	if f == nil {
		return 0
	}
	return len(f.sinks)
}

// Publish 将事件投递至所有 Sink 并合并错误。
func (f *Fanout) Publish(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close 关闭全部 Sink。
func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// LogSink 把事件写入日志。
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink 创建 LogSink，l 为空时使用 events 组件日志。
func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = logger.Named("events")
	}
	return &LogSink{logger: l}
}

// Name 返回 log。
func (s *LogSink) Name() string { return "log" }

// Publish 以 debug 级别记录事件。
func (s *LogSink) Publish(ctx context.Context, event Event) error {
	s.logger.DebugContext(ctx, "任务事件",
		slog.String("type", event.Type),
		slog.String("task_id", event.TaskID),
		slog.String("trace_id", event.TraceID),
		slog.String("status", event.Status),
	)
	return nil
}

// Close 无需操作。
func (s *LogSink) Close() error { return nil }

// MemorySink 在内存中保存事件，供测试与内嵌场景读取。
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink 创建 MemorySink。
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Name 返回 memory。
func (s *MemorySink) Name() string { return "memory" }

// Publish 追加事件。
func (s *MemorySink) Publish(_ context.Context, event Event) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

// Events 返回已记录事件的副本。
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ForTask 返回指定任务的事件。
func (s *MemorySink) ForTask(taskID string) []Event {
	var out []Event
	for _, e := range s.Events() {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out
}

// Close 无需操作。
func (s *MemorySink) Close() error { return nil }

var (
	_ Sink = (*Fanout)(nil)
	_ Sink = (*LogSink)(nil)
	_ Sink = (*MemorySink)(nil)
)
