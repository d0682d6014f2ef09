package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	xerrors "OpenAgents/internal/errors"
	"OpenAgents/internal/llm"
)

const (
	DefaultBaseURL   = "https://openrouter.ai/api"
	DefaultModel     = "anthropic/claude-sonnet-4-5"
	DefaultMaxTokens = 4096
	DefaultTimeout   = 30 * time.Second
)

// Config 描述了调用 Anthropic Messages API（或兼容网关）所需的信息。
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client 通过 anthropic-sdk-go 调用 Messages API。
type Client struct {
	msgs      *anthropicsdk.MessageService
	model     anthropicsdk.Model
	maxTokens int64
}

// NewClient 根据配置创建客户端。SDK 自带的重试被关闭，失败直接上抛。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "未提供 LLM API Key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	client := anthropicsdk.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)
	return &Client{
		msgs:      &client.Messages,
		model:     anthropicsdk.Model(model),
		maxTokens: int64(maxTokens),
	}, nil
}

// Chat 实现 llm.Client。
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, llm.NewError(llm.KindUnknown, "Unknown error", err)
	}
	msg, err := c.msgs.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	resp := &llm.ChatResponse{StopReason: llm.NormalizeStopReason(string(msg.StopReason))}
	var texts []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				texts = append(texts, block.Text)
			}
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: decodeInput(block.Input),
			})
		}
	}
	// 多个文本块按顺序以空行拼接。
	resp.Text = strings.Join(texts, "\n\n")
	return resp, nil
}

func (c *Client) buildParams(req llm.ChatRequest) (anthropicsdk.MessageNewParams, error) {
	params := anthropicsdk.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  convertMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropicsdk.ToolUnionParam, 0, len(req.Tools))
		for _, spec := range req.Tools {
			schema, err := encodeSchema(spec.InputSchema)
			if err != nil {
				return params, fmt.Errorf("tool %s schema: %w", spec.Name, err)
			}
			t := anthropicsdk.ToolParam{Name: spec.Name, InputSchema: schema}
			if spec.Description != "" {
				t.Description = anthropicsdk.String(spec.Description)
			}
			tools = append(tools, anthropicsdk.ToolUnionParam{OfTool: &t})
		}
		params.Tools = tools
	}
	return params, nil
}

func convertMessages(msgs []llm.Message) []anthropicsdk.MessageParam {
	out := make([]anthropicsdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		role := anthropicsdk.MessageParamRoleUser
		if m.Role == llm.RoleAssistant {
			role = anthropicsdk.MessageParamRoleAssistant
		}
		var content []anthropicsdk.ContentBlockParamUnion
		if m.IsText() {
			content = append(content, anthropicsdk.NewTextBlock(m.Text))
		}
		for _, b := range m.Blocks {
			switch b.Type {
			case llm.BlockText:
				content = append(content, anthropicsdk.NewTextBlock(b.Text))
			case llm.BlockToolUse:
				input := b.Input
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, anthropicsdk.NewToolUseBlock(b.ID, input, b.Name))
			case llm.BlockToolResult:
				content = append(content, anthropicsdk.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError))
			}
		}
		out = append(out, anthropicsdk.MessageParam{Role: role, Content: content})
	}
	return out
}

func encodeSchema(raw map[string]any) (anthropicsdk.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return anthropicsdk.ToolInputSchemaParam{}, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return anthropicsdk.ToolInputSchemaParam{}, err
	}
	var schema anthropicsdk.ToolInputSchemaParam
	if err := json.Unmarshal(data, &schema); err != nil {
		return anthropicsdk.ToolInputSchemaParam{}, err
	}
	return schema, nil
}

func decodeInput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

func classify(err error) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return llm.Classify(err, apiErr.StatusCode, apiErr.Error())
	}
	return llm.Classify(err, 0, "")
}
