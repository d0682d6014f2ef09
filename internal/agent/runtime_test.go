package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OpenAgents/internal/llm"
	"OpenAgents/internal/tool"
	"OpenAgents/internal/tool/filesystem"
	"OpenAgents/internal/tool/sandbox"
)

// scriptedLLM 按顺序返回预设响应，并记录每次收到的请求。
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*llm.ChatResponse
	requests  []llm.ChatRequest
	fallback  *llm.ChatResponse
	err       error
}

func (s *scriptedLLM) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]llm.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		if s.fallback != nil {
			return s.fallback, nil
		}
		return &llm.ChatResponse{StopReason: llm.StopEndTurn}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFSGateway(t *testing.T) (*tool.Gateway, sandbox.Root) {
	t.Helper()
	root, err := sandbox.NewRoot(t.TempDir())
	require.NoError(t, err)
	g := tool.NewGateway(tool.WithLogger(quietLogger()))
	g.MustRegister(filesystem.Adapters(root)...)
	return g, root
}

func TestToolNameRoundTrip(t *testing.T) {
	assert.Equal(t, "filesystem__dot__read", ToAPIName("filesystem.read"))
	assert.Equal(t, "filesystem.read", FromAPIName("filesystem__dot__read"))
	assert.Equal(t, "a.b.c", FromAPIName(ToAPIName("a.b.c")))
	assert.Equal(t, "plain_name", ToAPIName("plain_name"))
}

func TestRunWritesFileAndSummarizes(t *testing.T) {
	gw, root := newFSGateway(t)
	model := &scriptedLLM{responses: []*llm.ChatResponse{
		{
			StopReason: llm.StopToolUse,
			Text:       "Writing the file.",
			ToolCalls: []llm.ToolCall{{
				ID:    "tu_1",
				Name:  "filesystem__dot__write",
				Input: map[string]any{"path": "e2e.txt", "content": "E2E OK"},
			}},
		},
		{StopReason: llm.StopEndTurn, Text: "Wrote e2e.txt."},
	}}
	rt := NewRuntime(model, gw, WithLogger(quietLogger()))

	res, err := rt.Run(context.Background(), Task{TaskID: "t1", TraceID: "tr1", Goal: "write e2e.txt"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "Wrote e2e.txt.", res.Summary)
	assert.Equal(t, "t1", res.TaskID)
	assert.NotNil(t, res.Artifacts)
	assert.Empty(t, res.Artifacts)

	data, err := os.ReadFile(filepath.Join(root.Dir(), "e2e.txt"))
	require.NoError(t, err)
	assert.Equal(t, "E2E OK", string(data))

	require.Len(t, model.requests, 2)
	first := model.requests[0]
	assert.Equal(t, DefaultSystemPrompt, first.System)
	names := make([]string, 0, len(first.Tools))
	for _, spec := range first.Tools {
		names = append(names, spec.Name)
	}
	assert.Equal(t, []string{"filesystem__dot__list", "filesystem__dot__read", "filesystem__dot__write"}, names)

	// user goal, assistant tool_use turn, user tool_result turn
	second := model.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, llm.RoleAssistant, second[1].Role)
	require.Len(t, second[1].Blocks, 2)
	assert.Equal(t, llm.BlockText, second[1].Blocks[0].Type)
	assert.Equal(t, llm.BlockToolUse, second[1].Blocks[1].Type)
	require.Len(t, second[2].Blocks, 1)
	assert.Equal(t, "tu_1", second[2].Blocks[0].ToolUseID)
	assert.Contains(t, second[2].Blocks[0].Content, `"bytesWritten":6`)
}

func TestRunReportsToolErrorsToModel(t *testing.T) {
	gw, _ := newFSGateway(t)
	model := &scriptedLLM{responses: []*llm.ChatResponse{
		{
			StopReason: llm.StopToolUse,
			ToolCalls: []llm.ToolCall{
				{ID: "a", Name: "filesystem__dot__read", Input: map[string]any{"path": "/etc/passwd"}},
				{ID: "b", Name: "no__dot__such", Input: map[string]any{}},
			},
		},
		{StopReason: llm.StopEndTurn, Text: "Access denied: the path is outside the sandbox."},
	}}
	rt := NewRuntime(model, gw, WithLogger(quietLogger()))

	res, err := rt.Run(context.Background(), Task{TaskID: "t1", Goal: "read /etc/passwd"})
	require.NoError(t, err)
	assert.Equal(t, "Access denied: the path is outside the sandbox.", res.Summary)

	results := model.requests[1].Messages[2].Blocks
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ToolUseID)
	assert.Equal(t, "Error: Path is outside sandbox: /etc/passwd", results[0].Content)
	assert.True(t, results[0].IsError)
	assert.Equal(t, "b", results[1].ToolUseID)
	assert.Equal(t, "Error: Unknown tool: no.such", results[1].Content)
}

func TestRunStopsAtIterationCap(t *testing.T) {
	gw, _ := newFSGateway(t)
	model := &scriptedLLM{fallback: &llm.ChatResponse{
		StopReason: llm.StopToolUse,
		ToolCalls:  []llm.ToolCall{{ID: "x", Name: "filesystem__dot__list", Input: map[string]any{}}},
	}}
	rt := NewRuntime(model, gw, WithLogger(quietLogger()))

	res, err := rt.Run(context.Background(), Task{TaskID: "t1", Goal: "loop forever"})
	require.NoError(t, err)
	assert.Len(t, model.requests, DefaultMaxIterations)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, DefaultSummary, res.Summary)

	model = &scriptedLLM{fallback: model.fallback}
	_, err = NewRuntime(model, gw, WithMaxIterations(3), WithLogger(quietLogger())).Run(context.Background(), Task{Goal: "x"})
	require.NoError(t, err)
	assert.Len(t, model.requests, 3)
}

func TestRunEndTurnWithToolCallsStopsAfterResults(t *testing.T) {
	gw, _ := newFSGateway(t)
	model := &scriptedLLM{responses: []*llm.ChatResponse{{
		StopReason: llm.StopEndTurn,
		Text:       "Listing and done.",
		ToolCalls:  []llm.ToolCall{{ID: "x", Name: "filesystem__dot__list", Input: map[string]any{}}},
	}}}
	rt := NewRuntime(model, gw, WithLogger(quietLogger()))

	res, err := rt.Run(context.Background(), Task{Goal: "list"})
	require.NoError(t, err)
	assert.Len(t, model.requests, 1)
	assert.Equal(t, "Listing and done.", res.Summary)
}

func TestRunEmptyFinalTextUsesDefaultSummary(t *testing.T) {
	gw, _ := newFSGateway(t)
	model := &scriptedLLM{responses: []*llm.ChatResponse{{StopReason: llm.StopEndTurn}}}

	res, err := NewRuntime(model, gw, WithLogger(quietLogger())).Run(context.Background(), Task{Goal: "nothing"})
	require.NoError(t, err)
	assert.Equal(t, DefaultSummary, res.Summary)
}

func TestRunPropagatesLLMError(t *testing.T) {
	gw, _ := newFSGateway(t)
	boom := llm.NewError(llm.KindRateLimit, "", errors.New("429"))
	model := &scriptedLLM{err: boom}

	_, err := NewRuntime(model, gw, WithLogger(quietLogger())).Run(context.Background(), Task{Goal: "x"})
	require.Error(t, err)
	assert.Equal(t, llm.KindRateLimit, llm.ErrorKindOf(err))
}

func TestRunUsesSkillPrompt(t *testing.T) {
	gw, _ := newFSGateway(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skill.json"), []byte(`{"name":"s","version":"1","description":"d","triggers":[]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("custom prompt"), 0o644))

	model := &scriptedLLM{}
	rt := NewRuntime(model, gw, WithDefaultSkillDir(filepath.Join(dir, "missing")), WithLogger(quietLogger()))

	_, err := rt.Run(context.Background(), Task{Goal: "x", SkillDir: dir})
	require.NoError(t, err)
	_, err = rt.Run(context.Background(), Task{Goal: "y"})
	require.NoError(t, err)

	require.Len(t, model.requests, 2)
	assert.Equal(t, "custom prompt", model.requests[0].System)
	assert.Equal(t, DefaultSystemPrompt, model.requests[1].System)
}

// blockingInvoker 在所有调用到齐之前阻塞，用于证明工具是并发执行的。
type blockingInvoker struct {
	want    int32
	arrived atomic.Int32
	release chan struct{}
}

func (b *blockingInvoker) Specs() []tool.Spec { return nil }

func (b *blockingInvoker) Invoke(ctx context.Context, inv tool.Invocation) tool.Result {
	if b.arrived.Add(1) == b.want {
		close(b.release)
	}
	select {
	case <-b.release:
		return tool.OK(map[string]any{"tool": inv.ToolName})
	case <-time.After(2 * time.Second):
		return tool.Fail("not concurrent")
	}
}

func TestRunExecutesToolsConcurrently(t *testing.T) {
	inv := &blockingInvoker{want: 3, release: make(chan struct{})}
	model := &scriptedLLM{responses: []*llm.ChatResponse{
		{
			StopReason: llm.StopToolUse,
			ToolCalls: []llm.ToolCall{
				{ID: "1", Name: "a__dot__one"},
				{ID: "2", Name: "a__dot__two"},
				{ID: "3", Name: "a__dot__three"},
			},
		},
		{StopReason: llm.StopEndTurn, Text: "done"},
	}}

	_, err := NewRuntime(model, inv, WithLogger(quietLogger())).Run(context.Background(), Task{Goal: "x"})
	require.NoError(t, err)

	results := model.requests[1].Messages[2].Blocks
	require.Len(t, results, 3)
	assert.Equal(t, `{"tool":"a.one"}`, results[0].Content)
	assert.Equal(t, `{"tool":"a.two"}`, results[1].Content)
	assert.Equal(t, `{"tool":"a.three"}`, results[2].Content)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, DefaultSummary, summarize(nil))
	assert.Equal(t, "hi", summarize([]llm.Message{{Role: llm.RoleAssistant, Text: "hi"}}))
	assert.Equal(t, "first", summarize([]llm.Message{
		{Role: llm.RoleAssistant, Blocks: []llm.Block{
			llm.ToolUseBlock(llm.ToolCall{ID: "x"}),
			llm.TextBlock("first"),
			llm.TextBlock("second"),
		}},
		{Role: llm.RoleUser, Blocks: []llm.Block{llm.ToolResultBlock("x", "{}", false)}},
	}))
	assert.Equal(t, DefaultSummary, summarize([]llm.Message{
		{Role: llm.RoleAssistant, Blocks: []llm.Block{llm.ToolUseBlock(llm.ToolCall{ID: "x"})}},
	}))
}
