package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	xerrors "OpenAgents/internal/errors"
	"OpenAgents/internal/llm"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultMaxTokens = 4096
	defaultTimeout   = 60 * time.Second
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client 通过 openai-go 调用 Chat Completions，并把工具调用映射为统一结构。
type Client struct {
	completions *openai.ChatCompletionService
	model       string
	maxTokens   int64
}

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "未提供 OpenAI API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/") + "/"

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)
	return &Client{
		completions: &client.Chat.Completions,
		model:       model,
		maxTokens:   int64(maxTokens),
	}, nil
}

// Chat 实现 llm.Client。
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(c.model),
		Messages:            buildMessages(req),
		MaxCompletionTokens: openai.Int(c.maxTokens),
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	completion, err := c.completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, llm.Classify(err, apiErr.StatusCode, apiErr.Error())
		}
		return nil, llm.Classify(err, 0, "")
	}
	if len(completion.Choices) == 0 {
		return nil, llm.NewError(llm.KindAPIError, "API error: OpenAI 响应中没有有效的 choices", nil)
	}

	choice := completion.Choices[0]
	resp := &llm.ChatResponse{
		StopReason: llm.StopEndTurn,
		Text:       choice.Message.Content,
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: parseArguments(tc.Function.Arguments),
		})
	}
	if choice.FinishReason == "tool_calls" || len(resp.ToolCalls) > 0 {
		resp.StopReason = llm.StopToolUse
	}
	return resp, nil
}

func buildMessages(req llm.ChatRequest) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if strings.TrimSpace(req.System) != "" {
		out = append(out, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		if m.IsText() {
			if m.Role == llm.RoleAssistant {
				out = append(out, assistantMessage(m.Text, nil))
			} else {
				out = append(out, openai.UserMessage(m.Text))
			}
			continue
		}
		if m.Role == llm.RoleAssistant {
			var text string
			var calls []llm.Block
			for _, b := range m.Blocks {
				switch b.Type {
				case llm.BlockText:
					text = b.Text
				case llm.BlockToolUse:
					calls = append(calls, b)
				}
			}
			out = append(out, assistantMessage(text, calls))
			continue
		}
		// 用户轮中的 tool_result 展开为独立的 tool 消息。
		for _, b := range m.Blocks {
			switch b.Type {
			case llm.BlockToolResult:
				out = append(out, openai.ToolMessage(b.Content, b.ToolUseID))
			case llm.BlockText:
				out = append(out, openai.UserMessage(b.Text))
			}
		}
	}
	return out
}

func assistantMessage(text string, calls []llm.Block) openai.ChatCompletionMessageParamUnion {
	param := openai.ChatCompletionAssistantMessageParam{}
	if text != "" {
		param.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(text)}
	}
	for _, call := range calls {
		args, _ := json.Marshal(call.Input)
		if call.Input == nil {
			args = []byte("{}")
		}
		param.ToolCalls = append(param.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Name,
				Arguments: string(args),
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &param}
}

func buildTools(specs []llm.ToolSpec) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		params := shared.FunctionParameters(spec.InputSchema)
		if len(params) == 0 {
			params = shared.FunctionParameters{"type": "object", "properties": map[string]any{}}
		}
		t := openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:       spec.Name,
				Parameters: params,
			},
		}
		if spec.Description != "" {
			t.Function.Description = openai.Opt(spec.Description)
		}
		out = append(out, t)
	}
	return out
}

func parseArguments(raw string) map[string]any {
	out := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{}
	}
	return out
}
