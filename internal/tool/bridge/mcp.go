package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	xerrors "OpenAgents/internal/errors"
)

const (
	clientName    = "openagents"
	clientVersion = "1.0.0"
)

// MCPProvider 通过 MCP 会话访问外部工具服务器。
type MCPProvider struct {
	server  string
	session *mcpsdk.ClientSession
}

// DialMCP 使用给定传输建立 MCP 会话并完成初始化握手。
func DialMCP(ctx context.Context, server string, transport mcpsdk.Transport) (*MCPProvider, error) {
	if transport == nil {
		return nil, xerrors.New(CodeBridgeUnavailable, "MCP 传输不能为空")
	}
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: clientName, Version: clientVersion}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, xerrors.Wrap(CodeBridgeUnavailable, err, fmt.Sprintf("连接 MCP 服务器 %s 失败", server))
	}
	return NewMCPProvider(server, session), nil
}

// NewMCPProvider 包装一个已建立的会话。
func NewMCPProvider(server string, session *mcpsdk.ClientSession) *MCPProvider {
	return &MCPProvider{server: server, session: session}
}

// Server 返回服务器标识。
func (p *MCPProvider) Server() string { return p.server }

// ListTools 实现 Provider。分页由 SDK 的迭代器处理。
func (p *MCPProvider) ListTools(ctx context.Context) ([]Descriptor, error) {
	if p.session == nil {
		return nil, xerrors.New(CodeBridgeUnavailable, "MCP 会话未建立")
	}
	var out []Descriptor
	for t, err := range p.session.Tools(ctx, nil) {
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue
		}
		schema, err := toSchemaMap(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s input schema: %w", t.Name, err)
		}
		out = append(out, Descriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return out, nil
}

// CallTool 实现 Provider。文本内容合并到 "content" 字段，
// 结构化内容的字段平铺到输出对象中。
func (p *MCPProvider) CallTool(ctx context.Context, name string, input map[string]any, traceID string) CallResult {
	if p.session == nil {
		return CallResult{Error: "MCP session is not connected"}
	}
	if input == nil {
		input = map[string]any{}
	}
	params := &mcpsdk.CallToolParams{Name: name, Arguments: input}
	if traceID != "" {
		params.Meta = mcpsdk.Meta{"traceId": traceID}
	}
	res, err := p.session.CallTool(ctx, params)
	if err != nil {
		return CallResult{Error: err.Error()}
	}
	if res == nil {
		return CallResult{}
	}

	text := joinText(res.Content)
	if res.IsError {
		return CallResult{Error: text}
	}
	content := map[string]any{}
	if structured, ok := toObject(res.StructuredContent); ok {
		for k, v := range structured {
			content[k] = v
		}
	}
	if text != "" {
		content["content"] = text
	}
	return CallResult{OK: true, Content: content}
}

// Close 实现 Provider。
func (p *MCPProvider) Close() error {
	if p.session == nil {
		return nil
	}
	return p.session.Close()
}

func joinText(content []mcpsdk.Content) string {
	var parts []string
	for _, c := range content {
		if txt, ok := c.(*mcpsdk.TextContent); ok && txt.Text != "" {
			parts = append(parts, txt.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// toSchemaMap 把 SDK 返回的 schema 转为 map，并去掉 "$schema" 声明，
// 网关的校验器只接受当前草案。
func toSchemaMap(raw any) (map[string]any, error) {
	if raw == nil {
		return map[string]any{"type": "object"}, nil
	}
	m, ok := toObject(raw)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", raw)
	}
	delete(m, "$schema")
	return m, nil
}

func toObject(v any) (map[string]any, bool) {
	if v == nil {
		return nil, false
	}
	if m, ok := v.(map[string]any); ok {
		return maps.Clone(m), true
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}
