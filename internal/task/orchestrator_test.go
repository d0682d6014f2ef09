package task

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"OpenAgents/internal/agent"
	xerrors "OpenAgents/internal/errors"
	"OpenAgents/internal/llm"
	"OpenAgents/internal/observability/events"
	"OpenAgents/internal/tool"
	"OpenAgents/internal/tool/filesystem"
	"OpenAgents/internal/tool/sandbox"
)

// fakeLLM 区分澄清门与运行时的请求，分别按顺序返回预设响应。
type fakeLLM struct {
	mu        sync.Mutex
	gate      []*llm.ChatResponse
	agent     []*llm.ChatResponse
	gateErr   error
	gateGoals []string
	agentReqs []llm.ChatRequest
}

func (f *fakeLLM) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.System == GateSystemPrompt {
		f.gateGoals = append(f.gateGoals, req.Messages[0].Text)
		if f.gateErr != nil {
			return nil, f.gateErr
		}
		if len(f.gate) == 0 {
			return &llm.ChatResponse{Text: `{"action": "execute"}`}, nil
		}
		resp := f.gate[0]
		f.gate = f.gate[1:]
		return resp, nil
	}
	msgs := make([]llm.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	f.agentReqs = append(f.agentReqs, req)
	if len(f.agent) == 0 {
		return &llm.ChatResponse{StopReason: llm.StopEndTurn, Text: "done"}, nil
	}
	resp := f.agent[0]
	f.agent = f.agent[1:]
	return resp, nil
}

type harness struct {
	orch  *Orchestrator
	store *MemoryStore
	model *fakeLLM
	sink  *events.MemorySink
	audit *bytes.Buffer
	root  sandbox.Root
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, model *fakeLLM, runner Runner) *harness {
	t.Helper()
	root, err := sandbox.NewRoot(t.TempDir())
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	if runner == nil {
		gw := tool.NewGateway(tool.WithLogger(quiet()))
		gw.MustRegister(filesystem.Adapters(root)...)
		runner = agent.NewRuntime(model, gw, agent.WithLogger(quiet()))
	}
	store := NewMemoryStore()
	sink := events.NewMemorySink()
	audit := &bytes.Buffer{}
	processor := NewProcessor(store, NewGate(model), runner,
		WithProcessorLogger(quiet()),
		WithAuditLogger(slog.New(slog.NewJSONHandler(audit, nil))),
		WithEventSink(sink),
	)
	return &harness{
		orch:  NewOrchestrator(store, processor),
		store: store,
		model: model,
		sink:  sink,
		audit: audit,
		root:  root,
	}
}

func (h *harness) statuses(taskID string) []string {
	var out []string
	for _, e := range h.sink.ForTask(taskID) {
		out = append(out, e.Status)
	}
	return out
}

func (h *harness) auditEntries(t *testing.T) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(h.audit.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode audit line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func toolCall(id, name string, input map[string]any) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: agent.ToAPIName(name), Input: input}
}

func TestSubmitRejectsEmptyGoal(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, nil)
	for _, goal := range []string{"", "   \n\t"} {
		_, err := h.orch.Submit(context.Background(), goal)
		if xerrors.CodeOf(err) != CodeTaskValidation {
			t.Fatalf("expected validation error for %q, got %v", goal, err)
		}
	}
	stats, _ := h.orch.Stats(context.Background())
	if stats.Total != 0 {
		t.Fatalf("no task should be created, got %d", stats.Total)
	}
}

func TestSubmitWriteThenReadCompletes(t *testing.T) {
	model := &fakeLLM{agent: []*llm.ChatResponse{
		{StopReason: llm.StopToolUse, ToolCalls: []llm.ToolCall{
			toolCall("w1", filesystem.WriteToolName, map[string]any{"path": "e2e.txt", "content": "E2E OK"}),
		}},
		{StopReason: llm.StopToolUse, ToolCalls: []llm.ToolCall{
			toolCall("r1", filesystem.ReadToolName, map[string]any{"path": "e2e.txt"}),
		}},
		{StopReason: llm.StopEndTurn, Text: "The file e2e.txt contains E2E OK."},
	}}
	h := newHarness(t, model, nil)

	created, err := h.orch.Submit(context.Background(), "  write E2E OK into e2e.txt and read it back  ")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if created.Goal != "write E2E OK into e2e.txt and read it back" {
		t.Fatalf("goal should be trimmed, got %q", created.Goal)
	}
	if created.ID == created.TraceID || created.TraceID == "" {
		t.Fatalf("trace id must be set and distinct from task id")
	}
	h.orch.Wait()

	data, err := os.ReadFile(filepath.Join(h.root.Dir(), "e2e.txt"))
	if err != nil || string(data) != "E2E OK" {
		t.Fatalf("unexpected file content %q, err %v", data, err)
	}

	status, err := h.orch.Status(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Status != StatusCompleted || status.BlockedReason != "" {
		t.Fatalf("unexpected status: %+v", status)
	}
	result, err := h.orch.Result(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.TaskID != created.ID || result.Status != agent.StatusCompleted || !strings.Contains(result.Summary, "E2E OK") {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := strings.Join(h.statuses(created.ID), ","); got != "pending,running,completed" {
		t.Fatalf("unexpected transitions: %s", got)
	}

	readTurn := model.agentReqs[2].Messages
	last := readTurn[len(readTurn)-1]
	if len(last.Blocks) != 1 || last.Blocks[0].IsError || !strings.Contains(last.Blocks[0].Content, "E2E OK") {
		t.Fatalf("read result should be fed back to the model: %+v", last)
	}
}

func TestOutOfSandboxReadEndsWithDenial(t *testing.T) {
	model := &fakeLLM{agent: []*llm.ChatResponse{
		{StopReason: llm.StopToolUse, ToolCalls: []llm.ToolCall{
			toolCall("r1", filesystem.ReadToolName, map[string]any{"path": "/etc/passwd"}),
		}},
		{StopReason: llm.StopEndTurn, Text: "I cannot read /etc/passwd: access denied outside the sandbox."},
	}}
	h := newHarness(t, model, nil)

	created, err := h.orch.Submit(context.Background(), "read /etc/passwd")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.orch.Wait()

	result, err := h.orch.Result(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if !strings.Contains(result.Summary, "denied") {
		t.Fatalf("summary should report the denial: %q", result.Summary)
	}
	turn := model.agentReqs[1].Messages
	block := turn[len(turn)-1].Blocks[0]
	if !block.IsError || !strings.HasPrefix(block.Content, "Error: ") {
		t.Fatalf("sandbox denial should come back as a tool error: %+v", block)
	}
}

func TestClarifyBlocksThenResumeCompletes(t *testing.T) {
	model := &fakeLLM{
		gate: []*llm.ChatResponse{
			{Text: "```json\n{\"action\": \"clarify\", \"question\": \"Which file should I write?\"}\n```"},
			{Text: `{"action": "execute"}`},
		},
		agent: []*llm.ChatResponse{{StopReason: llm.StopEndTurn, Text: "Wrote notes.txt."}},
	}
	h := newHarness(t, model, nil)
	ctx := context.Background()

	created, err := h.orch.Submit(ctx, "write a file")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.orch.Wait()

	blocked, _ := h.orch.Status(ctx, created.ID)
	if blocked.Status != StatusBlocked || blocked.BlockedReason != "Which file should I write?" {
		t.Fatalf("expected blocked with reason, got %+v", blocked)
	}
	if _, err := h.orch.Result(ctx, created.ID); xerrors.CodeOf(err) != CodeTaskNotFinished {
		t.Fatalf("blocked task has no result yet, got %v", err)
	}

	if err := h.orch.Resume(ctx, created.ID, "  notes.txt "); err != nil {
		t.Fatalf("resume: %v", err)
	}
	h.orch.Wait()

	done, _ := h.orch.Status(ctx, created.ID)
	if done.Status != StatusCompleted || done.BlockedReason != "" || done.ResumeInput != "notes.txt" {
		t.Fatalf("unexpected final state: %+v", done)
	}
	want := "write a file" + ResumeSeparator + "notes.txt"
	if len(model.gateGoals) != 2 || model.gateGoals[1] != want {
		t.Fatalf("resumed gate goal mismatch: %q", model.gateGoals)
	}
	if got := model.agentReqs[0].Messages[0].Text; got != want {
		t.Fatalf("runtime should receive the resumed goal, got %q", got)
	}
	if got := strings.Join(h.statuses(created.ID), ","); got != "pending,running,blocked,running,completed" {
		t.Fatalf("unexpected transitions: %s", got)
	}

	var blockedEntry map[string]any
	for _, entry := range h.auditEntries(t) {
		if entry["status"] == "blocked" {
			blockedEntry = entry
		}
	}
	if blockedEntry == nil || blockedEntry["blocked_reason"] != "Which file should I write?" || blockedEntry["msg"] != "任务状态变更" {
		t.Fatalf("blocked transition should be audited with its reason: %v", blockedEntry)
	}
}

func TestResumeRejectsWithoutStateChange(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, nil)
	ctx := context.Background()

	if err := h.orch.Resume(ctx, "missing", "x"); !stdErrors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	created, _ := h.orch.Submit(ctx, "do something")
	h.orch.Wait()
	before, _ := h.orch.Status(ctx, created.ID)

	if err := h.orch.Resume(ctx, created.ID, ""); xerrors.CodeOf(err) != CodeTaskValidation {
		t.Fatalf("empty input should be rejected, got %v", err)
	}
	if err := h.orch.Resume(ctx, created.ID, "more"); !stdErrors.Is(err, ErrTaskNotBlocked) {
		t.Fatalf("expected not blocked, got %v", err)
	}
	after, _ := h.orch.Status(ctx, created.ID)
	if after.Status != before.Status || !after.UpdatedAt.Equal(before.UpdatedAt) || after.ResumeInput != "" {
		t.Fatalf("rejected resume must not touch the task: before %+v after %+v", before, after)
	}
}

type blockingRunner struct {
	release chan struct{}
	started chan struct{}
}

func (b *blockingRunner) Run(_ context.Context, task agent.Task) (*agent.Result, error) {
	close(b.started)
	<-b.release
	return &agent.Result{TaskID: task.TaskID, Status: agent.StatusCompleted, Summary: "ok", Artifacts: []agent.Artifact{}}, nil
}

func TestResultWhileRunningReportsStatus(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{}), started: make(chan struct{})}
	h := newHarness(t, &fakeLLM{}, runner)
	ctx := context.Background()

	created, _ := h.orch.Submit(ctx, "slow goal")
	<-runner.started

	_, err := h.orch.Result(ctx, created.ID)
	if xerrors.CodeOf(err) != CodeTaskNotFinished {
		t.Fatalf("expected not finished, got %v", err)
	}
	coded, _ := xerrors.From(err)
	if coded.Metadata()["status"] != string(StatusRunning) {
		t.Fatalf("error should carry the current status: %v", coded.Metadata())
	}

	close(runner.release)
	h.orch.Wait()
	if _, err := h.orch.Result(ctx, created.ID); err != nil {
		t.Fatalf("result after completion: %v", err)
	}
	if _, err := h.orch.Result(ctx, "missing"); !stdErrors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGateFailureMarksFailedWithoutResult(t *testing.T) {
	model := &fakeLLM{gateErr: llm.NewError(llm.KindRateLimit, "rate limit exceeded", nil)}
	h := newHarness(t, model, nil)
	ctx := context.Background()

	created, _ := h.orch.Submit(ctx, "anything")
	h.orch.Wait()

	status, _ := h.orch.Status(ctx, created.ID)
	if status.Status != StatusFailed || status.Result != nil {
		t.Fatalf("expected failed without result, got %+v", status)
	}
	if _, err := h.orch.Result(ctx, created.ID); !stdErrors.Is(err, ErrTaskResultUnavailable) {
		t.Fatalf("expected result unavailable, got %v", err)
	}

	entries := h.auditEntries(t)
	last := entries[len(entries)-1]
	if last["status"] != "failed" || last["level"] != "WARN" || !strings.Contains(last["error"].(string), "rate limit") {
		t.Fatalf("failure should be audited with the error: %v", last)
	}
	if last["code"] != "LLM_RATE_LIMIT" || last["retryable"] != true {
		t.Fatalf("failure audit should carry code and retryable: %v", last)
	}
}

type panicRunner struct{}

func (panicRunner) Run(context.Context, agent.Task) (*agent.Result, error) {
	panic("runtime exploded")
}

func TestRunnerPanicMarksFailed(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, panicRunner{})
	ctx := context.Background()

	created, _ := h.orch.Submit(ctx, "boom")
	h.orch.Wait()

	status, _ := h.orch.Status(ctx, created.ID)
	if status.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", status.Status)
	}
	if !strings.Contains(h.audit.String(), "runtime exploded") {
		t.Fatalf("panic should be logged")
	}
	entries := h.auditEntries(t)
	last := entries[len(entries)-1]
	if last["level"] != "ERROR" || last["code"] != "UNKNOWN" || last["retryable"] != false {
		t.Fatalf("panic should be audited as a critical failure: %v", last)
	}
}

type failedRunner struct{}

func (failedRunner) Run(_ context.Context, task agent.Task) (*agent.Result, error) {
	return &agent.Result{TaskID: task.TaskID, Status: agent.StatusFailed, Summary: "gave up", Artifacts: []agent.Artifact{}}, nil
}

func TestFailedResultIsStored(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, failedRunner{})
	ctx := context.Background()

	created, _ := h.orch.Submit(ctx, "hopeless")
	h.orch.Wait()

	result, err := h.orch.Result(ctx, created.ID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.Status != agent.StatusFailed || result.Summary != "gave up" {
		t.Fatalf("unexpected result: %+v", result)
	}
	status, _ := h.orch.Status(ctx, created.ID)
	if status.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", status.Status)
	}
}

func TestListAndStatsAcrossTasks(t *testing.T) {
	model := &fakeLLM{gate: []*llm.ChatResponse{
		{Text: `{"action":"clarify","question":"Which one?"}`},
	}}
	h := newHarness(t, model, nil)
	ctx := context.Background()

	blocked, _ := h.orch.Submit(ctx, "ambiguous")
	h.orch.Wait()
	done, _ := h.orch.Submit(ctx, "clear goal")
	h.orch.Wait()

	stats, err := h.orch.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 2 || stats.Blocked != 1 || stats.Completed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	list, err := h.orch.List(ctx, WithStatuses(StatusBlocked))
	if err != nil || len(list) != 1 || list[0].ID != blocked.ID {
		t.Fatalf("unexpected blocked list: %v %v", list, err)
	}
	list, _ = h.orch.List(ctx, WithResultPresence(true))
	if len(list) != 1 || list[0].ID != done.ID {
		t.Fatalf("unexpected result list: %v", list)
	}
	list, _ = h.orch.List(ctx, WithQuery("AMBIG"))
	if len(list) != 1 || list[0].ID != blocked.ID {
		t.Fatalf("query should match goal case-insensitively: %v", list)
	}
	if err := h.orch.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

type recordingRunner struct {
	mu    sync.Mutex
	tasks []agent.Task
}

func (r *recordingRunner) Run(_ context.Context, task agent.Task) (*agent.Result, error) {
	r.mu.Lock()
	r.tasks = append(r.tasks, task)
	r.mu.Unlock()
	return &agent.Result{TaskID: task.TaskID, Status: agent.StatusCompleted, Summary: "ok", Artifacts: []agent.Artifact{}}, nil
}

func TestProcessorPassesSkillDirAndIDs(t *testing.T) {
	runner := &recordingRunner{}
	store := NewMemoryStore()
	processor := NewProcessor(store, NewGate(&fakeLLM{}), runner,
		WithProcessorLogger(quiet()),
		WithAuditLogger(quiet()),
		WithSkillDir("skills/reviewer"),
	)
	orch := NewOrchestrator(store, processor)
	ctx := context.Background()

	created, err := orch.Submit(ctx, "review the notes")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	orch.Wait()

	if len(runner.tasks) != 1 {
		t.Fatalf("expected one run, got %d", len(runner.tasks))
	}
	got := runner.tasks[0]
	if got.SkillDir != "skills/reviewer" || got.TaskID != created.ID || got.TraceID != created.TraceID || got.Goal != "review the notes" {
		t.Fatalf("unexpected agent task: %+v", got)
	}
}
