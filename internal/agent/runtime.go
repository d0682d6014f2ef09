package agent

import (
	"context"
	"encoding/json"
	"log/slog"

	"golang.org/x/sync/errgroup"

	xerrors "OpenAgents/internal/errors"
	"OpenAgents/internal/llm"
	"OpenAgents/internal/observability/metrics"
	"OpenAgents/internal/skill"
	"OpenAgents/internal/tool"
	"OpenAgents/pkg/logger"
)

const (
	// DefaultMaxIterations 是单次运行允许的最大模型调用次数。
	DefaultMaxIterations = 20
	// DefaultSystemPrompt 在技能无法加载时使用。
	DefaultSystemPrompt = "You are a general-purpose agent. Complete the user's task."
	// DefaultSummary 在模型没有给出文本时作为结果摘要。
	DefaultSummary = "Task completed."
)

// Status 是运行结果的状态。
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task 是一次运行的输入。
type Task struct {
	TaskID   string
	TraceID  string
	Goal     string
	SkillDir string
}

// Artifact 是运行产出的附属内容，目前始终为空列表。
type Artifact struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Result 是一次运行的结果。
type Result struct {
	TaskID    string     `json:"taskId"`
	Status    Status     `json:"status"`
	Summary   string     `json:"summary"`
	Artifacts []Artifact `json:"artifacts"`
}

// Invoker 是运行时需要的工具网关能力，*tool.Gateway 满足该接口。
type Invoker interface {
	Specs() []tool.Spec
	Invoke(ctx context.Context, inv tool.Invocation) tool.Result
}

// Runtime 驱动模型与工具之间的循环。
type Runtime struct {
	llm             llm.Client
	tools           Invoker
	defaultSkillDir string
	maxIterations   int
	logger          *slog.Logger
}

// Option 定义可选的 Runtime 配置。
type Option func(*Runtime)

// WithDefaultSkillDir 设置任务未指定技能目录时使用的目录。
func WithDefaultSkillDir(dir string) Option {
	return func(r *Runtime) { r.defaultSkillDir = dir }
}

// WithMaxIterations 覆盖最大迭代次数。
func WithMaxIterations(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.maxIterations = n
		}
	}
}

// WithLogger 指定运行日志的输出。
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRuntime 创建运行时。
func NewRuntime(client llm.Client, tools Invoker, opts ...Option) *Runtime {
	r := &Runtime{
		llm:           client,
		tools:         tools,
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = logger.Named("agent")
	}
	return r
}

// Run 执行任务直到模型结束或达到迭代上限。模型调用失败会作为 error 返回。
func (r *Runtime) Run(ctx context.Context, task Task) (*Result, error) {
	// 验证必要的组件是否已配置。
	if r.llm == nil || r.tools == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置模型客户端或工具网关")
	}

	system := r.systemPrompt(task)
	specs := r.toolSpecs()
	messages := []llm.Message{llm.UserText(task.Goal)}

	iterations := 0
	for iterations < r.maxIterations {
		iterations++

		resp, err := r.llm.Chat(ctx, llm.ChatRequest{System: system, Messages: messages, Tools: specs})
		if err != nil {
			metrics.ObserveAgentRun(iterations)
			return nil, err
		}
		r.logger.Debug("模型迭代完成",
			slog.String("task_id", task.TaskID),
			slog.String("trace_id", task.TraceID),
			slog.Int("iteration", iterations),
			slog.Int("tool_calls", len(resp.ToolCalls)),
			slog.String("stop_reason", string(resp.StopReason)))

		if len(resp.ToolCalls) == 0 {
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Text: resp.Text})
			break
		}

		// 记录助手轮：可选的文本块加上所有工具调用块。
		blocks := make([]llm.Block, 0, len(resp.ToolCalls)+1)
		if resp.Text != "" {
			blocks = append(blocks, llm.TextBlock(resp.Text))
		}
		for _, call := range resp.ToolCalls {
			blocks = append(blocks, llm.ToolUseBlock(call))
		}
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Blocks: blocks})

		// 并发执行工具，结果按调用顺序回填到同一个用户轮。
		results := r.executeTools(ctx, task, resp.ToolCalls)
		resultBlocks := make([]llm.Block, len(resp.ToolCalls))
		for i, call := range resp.ToolCalls {
			resultBlocks[i] = llm.ToolResultBlock(call.ID, results[i].content, results[i].isError)
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Blocks: resultBlocks})

		if resp.StopReason == llm.StopEndTurn {
			break
		}
	}
	metrics.ObserveAgentRun(iterations)

	return &Result{
		TaskID:    task.TaskID,
		Status:    StatusCompleted,
		Summary:   summarize(messages),
		Artifacts: []Artifact{},
	}, nil
}

func (r *Runtime) systemPrompt(task Task) string {
	dir := task.SkillDir
	if dir == "" {
		dir = r.defaultSkillDir
	}
	if dir == "" {
		return DefaultSystemPrompt
	}
	s, err := skill.Load(dir)
	if err != nil {
		r.logger.Debug("技能加载失败，使用默认提示词",
			slog.String("task_id", task.TaskID),
			slog.String("skill_dir", dir),
			slog.String("error", err.Error()))
		return DefaultSystemPrompt
	}
	return s.SystemPrompt
}

func (r *Runtime) toolSpecs() []llm.ToolSpec {
	specs := r.tools.Specs()
	out := make([]llm.ToolSpec, 0, len(specs))
	for _, spec := range specs {
		out = append(out, llm.ToolSpec{
			Name:        ToAPIName(spec.Name),
			Description: spec.Description,
			InputSchema: spec.InputSchema,
		})
	}
	return out
}

type toolOutcome struct {
	content string
	isError bool
}

func (r *Runtime) executeTools(ctx context.Context, task Task, calls []llm.ToolCall) []toolOutcome {
	results := make([]toolOutcome, len(calls))
	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			results[i] = r.executeTool(ctx, task, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Runtime) executeTool(ctx context.Context, task Task, call llm.ToolCall) toolOutcome {
	res := r.tools.Invoke(ctx, tool.Invocation{
		ToolName: FromAPIName(call.Name),
		Input:    call.Input,
		TaskID:   task.TaskID,
		TraceID:  task.TraceID,
	})
	if !res.OK {
		msg := res.Error
		if msg == "" {
			msg = "Tool execution failed"
		}
		return toolOutcome{content: "Error: " + msg, isError: true}
	}
	output := res.Output
	if output == nil {
		output = map[string]any{}
	}
	data, err := json.Marshal(output)
	if err != nil {
		return toolOutcome{content: "Error: " + err.Error(), isError: true}
	}
	return toolOutcome{content: string(data)}
}

// summarize 取最后一个助手轮作为摘要：纯文本直接使用，块形式取第一个文本块。
func summarize(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role != llm.RoleAssistant {
			continue
		}
		if m.IsText() {
			if m.Text == "" {
				return DefaultSummary
			}
			return m.Text
		}
		for _, b := range m.Blocks {
			if b.Type == llm.BlockText {
				return b.Text
			}
		}
		return DefaultSummary
	}
	return DefaultSummary
}
