package bridge

import (
	"context"
	"maps"
	"slices"

	"OpenAgents/internal/tool"
)

// DefaultPermission 是未单独配置权限的远端工具所声明的权限。
const DefaultPermission = "mcp:invoke"

// Adapter 把单个远端工具适配为 tool.Adapter。
type Adapter struct {
	provider   Provider
	remoteName string
	spec       tool.Spec
}

// NewAdapter 基于描述创建适配器。name 为注册到网关的名称，
// 调用远端时仍使用描述中的原始名称。
func NewAdapter(provider Provider, desc Descriptor, name string, permissions []string) *Adapter {
	if name == "" {
		name = desc.Name
	}
	if len(permissions) == 0 {
		permissions = []string{DefaultPermission}
	}
	return &Adapter{
		provider:   provider,
		remoteName: desc.Name,
		spec: tool.Spec{
			Name:        name,
			Description: desc.Description,
			InputSchema: maps.Clone(desc.InputSchema),
			OutputSchema: tool.Schema{
				"type":                 "object",
				"additionalProperties": true,
			},
			Permissions: slices.Clone(permissions),
			SideEffects: tool.SideEffectExternal,
		},
	}
}

// Spec 实现 tool.Adapter。
func (a *Adapter) Spec() tool.Spec { return a.spec }

// Invoke 实现 tool.Adapter。
func (a *Adapter) Invoke(ctx context.Context, input map[string]any, traceID string) tool.Result {
	res := a.provider.CallTool(ctx, a.remoteName, input, traceID)
	if !res.OK {
		msg := res.Error
		if msg == "" {
			msg = "MCP call failed: " + a.spec.Name
		}
		return tool.Fail(msg)
	}
	if res.Content == nil {
		return tool.OK(map[string]any{})
	}
	return tool.OK(res.Content)
}
