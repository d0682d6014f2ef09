// Package providers builds the configured llm.Client.
package providers

import (
	"context"
	"strings"
	"time"

	xerrors "OpenAgents/internal/errors"
	"OpenAgents/internal/llm"
	"OpenAgents/internal/llm/anthropic"
	"OpenAgents/internal/llm/openai"
	"OpenAgents/internal/llm/pythonbridge"
	"OpenAgents/internal/observability/metrics"
)

const (
	NameAnthropic    = "anthropic"
	NameOpenAI       = "openai"
	NamePythonBridge = "python_bridge"
)

// Config 描述模型提供方的选择与连接参数。
type Config struct {
	Provider   string
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	RateLimit  float64
	RateBurst  int
	PythonExec string
	Script     string
	WorkDir    string
}

// New 根据配置创建模型客户端，未指定提供方时使用 anthropic。
func New(cfg Config) (llm.Client, error) {
	var (
		client llm.Client
		err    error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", NameAnthropic:
		client, err = anthropic.NewClient(anthropic.Config{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
	case NameOpenAI:
		client, err = openai.NewClient(openai.Config{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
		})
	case NamePythonBridge:
		client, err = pythonbridge.NewClient(cfg.PythonExec, pythonbridge.ResolveScriptPath(cfg.WorkDir, cfg.Script), cfg.WorkDir)
	default:
		return nil, xerrors.Newf(xerrors.CodeConfiguration, "不支持的 LLM 提供方: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = NameAnthropic
	}
	return llm.RateLimited(&instrumented{name: name, next: client}, cfg.RateLimit, cfg.RateBurst), nil
}

// instrumented 按提供方与结果分类统计模型调用次数。
type instrumented struct {
	name string
	next llm.Client
}

func (i *instrumented) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := i.next.Chat(ctx, req)
	outcome := "success"
	if err != nil {
		outcome = string(llm.ErrorKindOf(err))
	}
	metrics.ObserveLLMCall(i.name, outcome)
	return resp, err
}

// RequiresAPIKey 判断提供方是否需要网络凭证。
func RequiresAPIKey(provider string) bool {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", NameAnthropic, NameOpenAI:
		return true
	default:
		return false
	}
}
