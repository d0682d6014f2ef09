package bridge

import "context"

// Descriptor 描述远端服务器公布的一个工具。
type Descriptor struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	InputSchema map[string]any `json:"inputSchema" yaml:"inputSchema"`
}

// CallResult 是远端工具调用的结果。
type CallResult struct {
	OK      bool
	Content map[string]any
	Error   string
}

// Provider 抽象一个外部工具服务器的客户端。
type Provider interface {
	ListTools(ctx context.Context) ([]Descriptor, error)
	CallTool(ctx context.Context, name string, input map[string]any, traceID string) CallResult
	Close() error
}

// NoopProvider 不公布任何工具，所有调用都会失败。
// 在未配置外部服务器时作为占位客户端使用。
type NoopProvider struct {
	Server string
}

// ListTools 实现 Provider。
func (NoopProvider) ListTools(context.Context) ([]Descriptor, error) {
	return nil, nil
}

// CallTool 实现 Provider。
func (NoopProvider) CallTool(_ context.Context, name string, _ map[string]any, _ string) CallResult {
	return CallResult{Error: "MCP tool not implemented in stub client: " + name}
}

// Close 实现 Provider。
func (NoopProvider) Close() error { return nil }
