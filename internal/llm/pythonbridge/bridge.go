package pythonbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	xerrors "OpenAgents/internal/errors"
	"OpenAgents/internal/llm"
)

// Client 通过调用外部脚本实现大模型推理。
// 请求以 JSON 写入脚本的标准输入，脚本需在标准输出返回一个 JSON 对象。
type Client struct {
	pythonExec string
	scriptPath string
	workingDir string
}

// NewClient 创建 Python Bridge 客户端。
func NewClient(pythonExec, scriptPath, workingDir string) (*Client, error) {
	if scriptPath == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "未指定 Python 脚本路径")
	}
	if pythonExec == "" {
		pythonExec = "python3"
	}
	return &Client{
		pythonExec: pythonExec,
		scriptPath: scriptPath,
		workingDir: workingDir,
	}, nil
}

type request struct {
	System   string         `json:"system"`
	Messages []llm.Message  `json:"messages"`
	Tools    []llm.ToolSpec `json:"tools"`
}

type response struct {
	StopReason string         `json:"stop_reason"`
	Text       string         `json:"text"`
	ToolCalls  []llm.ToolCall `json:"tool_calls"`
}

// Chat 调用外部脚本，并解析输出。
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	encoded, err := json.Marshal(request{System: req.System, Messages: req.Messages, Tools: req.Tools})
	if err != nil {
		return nil, llm.NewError(llm.KindUnknown, "序列化请求失败", err)
	}

	command := exec.CommandContext(ctx, c.pythonExec, c.scriptPath)
	if c.workingDir != "" {
		command.Dir = c.workingDir
	}
	command.Stdin = bytes.NewReader(encoded)

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		if llm.IsTimeout(ctx.Err()) {
			return nil, llm.NewError(llm.KindTimeout, "Request timed out", err)
		}
		return nil, llm.NewError(llm.KindAPIError,
			fmt.Sprintf("API error: 执行 Python 脚本失败: %v, stderr=%s", err, strings.TrimSpace(stderr.String())), err)
	}

	var resp response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, llm.NewError(llm.KindAPIError, "API error: 解析 Python 输出失败", err)
	}
	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].Input == nil {
			resp.ToolCalls[i].Input = map[string]any{}
		}
	}

	return &llm.ChatResponse{
		StopReason: llm.NormalizeStopReason(resp.StopReason),
		Text:       resp.Text,
		ToolCalls:  resp.ToolCalls,
	}, nil
}

// ResolveScriptPath 根据工作目录推导脚本绝对路径。
func ResolveScriptPath(baseDir, script string) string {
	if script == "" {
		return ""
	}
	if filepath.IsAbs(script) {
		return script
	}
	if baseDir == "" {
		return script
	}
	return filepath.Join(baseDir, script)
}
