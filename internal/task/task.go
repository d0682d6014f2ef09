package task

import (
	"time"

	"OpenAgents/internal/agent"
	xerrors "OpenAgents/internal/errors"
)

// Status 表示任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusBlocked   Status = "blocked"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task 描述了一个由编排器管理的智能体任务。
type Task struct {
	ID            string        `json:"id"`
	TraceID       string        `json:"traceId"`
	Goal          string        `json:"goal"`
	Status        Status        `json:"status"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	BlockedReason string        `json:"blockedReason,omitempty"`
	ResumeInput   string        `json:"resumeInput,omitempty"`
	Result        *agent.Result `json:"result,omitempty"`
}

const (
	CodeTaskNotFound          xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskValidation        xerrors.Code = "TASK_VALIDATION_FAILED"
	CodeTaskNotFinished       xerrors.Code = "TASK_NOT_FINISHED"
	CodeTaskResultUnavailable xerrors.Code = "TASK_RESULT_UNAVAILABLE"
	CodeTaskNotBlocked        xerrors.Code = "TASK_NOT_BLOCKED"
	CodeTaskInvalidTransition xerrors.Code = "TASK_INVALID_TRANSITION"
	CodeTaskConflict          xerrors.Code = "TASK_CONFLICT"
)

var (
	// ErrTaskNotFound 表示指定的任务不存在。
	ErrTaskNotFound = xerrors.New(CodeTaskNotFound, "Task not found")
	// ErrTaskNotBlocked 表示任务当前不处于 blocked 状态。
	ErrTaskNotBlocked = xerrors.New(CodeTaskNotBlocked, "Task not found or not blocked")
	// ErrTaskResultUnavailable 表示任务已结束但没有结果。
	ErrTaskResultUnavailable = xerrors.New(CodeTaskResultUnavailable, "Result not available")
	// ErrTaskConflict 表示任务 ID 已存在。
	ErrTaskConflict = xerrors.New(CodeTaskConflict, "task already exists")
)

func init() {
	xerrors.Register(CodeTaskNotFound, xerrors.Attributes{
		Message:  "Task not found",
		Kind:     xerrors.KindNotFound,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskValidation, xerrors.Attributes{
		Message:  "task validation failed",
		Kind:     xerrors.KindValidation,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskNotFinished, xerrors.Attributes{
		Message:  "Task is not finished yet",
		Kind:     xerrors.KindConflict,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskResultUnavailable, xerrors.Attributes{
		Message:  "Result not available",
		Kind:     xerrors.KindNotFound,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskNotBlocked, xerrors.Attributes{
		Message:  "Task not found or not blocked",
		Kind:     xerrors.KindNotFound,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskInvalidTransition, xerrors.Attributes{
		Message:  "invalid task status transition",
		Kind:     xerrors.KindConflict,
		Severity: xerrors.SeverityCritical,
	})
	xerrors.Register(CodeTaskConflict, xerrors.Attributes{
		Message:  "task already exists",
		Kind:     xerrors.KindConflict,
		Severity: xerrors.SeverityWarning,
	})
}

// transitions 列出每个状态允许进入的下一个状态。
var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusFailed},
	StatusRunning: {StatusBlocked, StatusCompleted, StatusFailed},
	StatusBlocked: {StatusRunning},
}

// CanTransition 判断 from → to 是否为合法的状态变更。
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal 判断状态是否为终态。
func IsTerminal(status Status) bool {
	return status == StatusCompleted || status == StatusFailed
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusBlocked, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneTask(task *Task) *Task {
	clone := *task
	clone.Result = cloneResult(task.Result)
	return &clone
}

func cloneResult(result *agent.Result) *agent.Result {
	if result == nil {
		return nil
	}
	clone := *result
	if result.Artifacts != nil {
		clone.Artifacts = append([]agent.Artifact{}, result.Artifacts...)
	}
	return &clone
}
