package tool

import (
	"context"
	"maps"
	"slices"

	xerrors "OpenAgents/internal/errors"
)

// SideEffect 描述工具调用对外部世界的影响范围。
type SideEffect string

const (
	SideEffectNone     SideEffect = "none"
	SideEffectFS       SideEffect = "fs"
	SideEffectNetwork  SideEffect = "network"
	SideEffectExternal SideEffect = "external"
)

// Schema 是 JSON Schema 文档的 map 形式。
type Schema = map[string]any

// Spec 描述一个工具的契约，注册后不可变。
type Spec struct {
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	InputSchema  Schema     `json:"inputSchema"`
	OutputSchema Schema     `json:"outputSchema"`
	Permissions  []string   `json:"permissions"`
	SideEffects  SideEffect `json:"sideEffects"`
}

func (s Spec) clone() Spec {
	s.InputSchema = maps.Clone(s.InputSchema)
	s.OutputSchema = maps.Clone(s.OutputSchema)
	s.Permissions = slices.Clone(s.Permissions)
	return s
}

// Invocation 是一次工具调用请求。
type Invocation struct {
	ToolName string
	Input    map[string]any
	TaskID   string
	TraceID  string
}

// Result 是工具调用的结构化结果。
type Result struct {
	OK     bool           `json:"ok"`
	Output map[string]any `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// OK 构造成功结果。
func OK(output map[string]any) Result {
	return Result{OK: true, Output: output}
}

// Fail 构造失败结果。
func Fail(message string) Result {
	return Result{OK: false, Error: message}
}

// FailErr 将 error 转换为失败结果，统一错误只保留其消息部分。
func FailErr(err error) Result {
	return Fail(xerrors.MessageOf(err))
}

// Adapter 由每个具体工具实现，Gateway 只依赖该接口。
type Adapter interface {
	Spec() Spec
	Invoke(ctx context.Context, input map[string]any, traceID string) Result
}

const (
	CodeToolDuplicate     xerrors.Code = "TOOL_ALREADY_REGISTERED"
	CodeToolSchemaInvalid xerrors.Code = "TOOL_SCHEMA_INVALID"
	CodeToolInvalid       xerrors.Code = "TOOL_INVALID_ADAPTER"
)

func init() {
	xerrors.Register(CodeToolDuplicate, xerrors.Attributes{
		Message:  "tool already registered",
		Kind:     xerrors.KindConflict,
		Severity: xerrors.SeverityCritical,
	})
	xerrors.Register(CodeToolSchemaInvalid, xerrors.Attributes{
		Message:  "tool schema cannot be compiled",
		Kind:     xerrors.KindValidation,
		Severity: xerrors.SeverityCritical,
	})
	xerrors.Register(CodeToolInvalid, xerrors.Attributes{
		Message:  "invalid tool adapter",
		Kind:     xerrors.KindValidation,
		Severity: xerrors.SeverityCritical,
	})
}
