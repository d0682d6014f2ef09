package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "OpenAgents/internal/errors"
	"OpenAgents/internal/observability/metrics"
	"OpenAgents/pkg/logger"
)

const unknownTask = "unknown-task"

type entry struct {
	adapter Adapter
	spec    Spec
	input   *validator
	output  *validator
}

// Gateway 是工具注册表，所有模型发起的工具调用都经由它执行。
type Gateway struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *slog.Logger
}

// Option 定义 Gateway 的可选配置。
type Option func(*Gateway)

// WithLogger 指定调用日志的输出位置，默认使用审计日志。
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGateway 创建空的工具注册表。
func NewGateway(opts ...Option) *Gateway {
	g := &Gateway{entries: make(map[string]*entry)}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	if g.logger == nil {
		g.logger = logger.Audit()
	}
	return g
}

// Register 注册适配器。重复的工具名会立即返回错误。
// 输入与输出 schema 在注册时编译并缓存。
func (g *Gateway) Register(adapter Adapter) error {
	if adapter == nil {
		return xerrors.New(CodeToolInvalid, "adapter 不能为空")
	}
	spec := adapter.Spec().clone()
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return xerrors.New(CodeToolInvalid, "工具名称不能为空")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.entries[name]; exists {
		return xerrors.New(CodeToolDuplicate, "Tool already registered: "+name)
	}
	input, err := compileSchema(spec.InputSchema)
	if err != nil {
		return xerrors.Wrap(CodeToolSchemaInvalid, err, "工具 "+name+" 的输入 schema 无效")
	}
	output, err := compileSchema(spec.OutputSchema)
	if err != nil {
		return xerrors.Wrap(CodeToolSchemaInvalid, err, "工具 "+name+" 的输出 schema 无效")
	}
	g.entries[name] = &entry{adapter: adapter, spec: spec, input: input, output: output}
	return nil
}

// MustRegister 与 Register 相同，但在失败时 panic，用于启动阶段的装配。
func (g *Gateway) MustRegister(adapters ...Adapter) {
	for _, adapter := range adapters {
		if err := g.Register(adapter); err != nil {
			panic(err)
		}
	}
}

// Names 返回已注册的工具名，按字典序排列。
func (g *Gateway) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.entries))
	for name := range g.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs 返回全部工具规格，按名称排序，保证提示词在多次运行间可复现。
func (g *Gateway) Specs() []Spec {
	g.mu.RLock()
	defer g.mu.RUnlock()
	specs := make([]Spec, 0, len(g.entries))
	for _, e := range g.entries {
		specs = append(specs, e.spec.clone())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Invoke 执行一次工具调用。任何失败都以 Result 返回，不会产生 error。
func (g *Gateway) Invoke(ctx context.Context, inv Invocation) Result {
	if inv.TaskID == "" {
		inv.TaskID = unknownTask
	}
	if inv.Input == nil {
		inv.Input = map[string]any{}
	}
	start := time.Now()

	g.mu.RLock()
	e, ok := g.entries[inv.ToolName]
	g.mu.RUnlock()
	if !ok {
		return g.finish(inv, "unknown", start, nil, "Unknown tool: "+inv.ToolName)
	}

	input, err := normalize(inv.Input)
	if err == nil {
		err = e.input.Validate(input)
	}
	if err != nil {
		return g.finish(inv, e.spec.Name, start, nil, fmt.Sprintf("Invalid input for tool %s: %v", e.spec.Name, err))
	}

	result := g.call(ctx, e, input, inv.TraceID)
	if !result.OK {
		msg := result.Error
		if msg == "" {
			msg = "Tool invocation failed"
		}
		return g.finish(inv, e.spec.Name, start, nil, msg)
	}

	output, err := normalize(result.Output)
	if err == nil {
		err = e.output.Validate(output)
	}
	if err != nil {
		return g.finish(inv, e.spec.Name, start, result.Output, fmt.Sprintf("Invalid output for tool %s: %v", e.spec.Name, err))
	}
	return g.finish(inv, e.spec.Name, start, output, "")
}

func (g *Gateway) call(ctx context.Context, e *entry, input map[string]any, traceID string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Fail(fmt.Sprintf("tool %s panicked: %v", e.spec.Name, r))
		}
	}()
	return e.adapter.Invoke(ctx, input, traceID)
}

// finish 写入唯一一条调用日志并记录指标。
func (g *Gateway) finish(inv Invocation, label string, start time.Time, output map[string]any, errMsg string) Result {
	attrs := []any{
		slog.String("tool_name", inv.ToolName),
		slog.String("task_id", inv.TaskID),
		slog.String("trace_id", inv.TraceID),
		slog.Any("input", inv.Input),
	}
	if output != nil {
		attrs = append(attrs, slog.Any("output", output))
	}
	outcome := "success"
	if errMsg != "" {
		outcome = "failure"
		attrs = append(attrs, slog.String("error", errMsg))
		g.logger.Error("工具调用失败", attrs...)
	} else {
		g.logger.Info("工具调用成功", attrs...)
	}
	metrics.ObserveToolInvocation(label, outcome, time.Since(start))

	if errMsg != "" {
		return Fail(errMsg)
	}
	return OK(output)
}
