package task

import (
	"context"
	"strings"

	xerrors "OpenAgents/internal/errors"
	"OpenAgents/internal/llm"
)

// GateSystemPrompt 要求模型只返回一个 JSON 决策对象。
const GateSystemPrompt = `You are the openAgents Orchestrator. Your role is to analyze the user's goal and decide whether:
1. You can proceed directly to execute the task (respond with JSON: {"action": "execute"})
2. You need more information from the user to execute it (respond with JSON: {"action": "clarify", "question": "<concise question>"})

Respond ONLY with the JSON, without additional text.`

// ResumeSeparator 连接原始目标与用户补充信息。
const ResumeSeparator = "\n\nAdditional information from the user: "

// Action 是澄清门的决策动作。
type Action string

const (
	ActionExecute Action = "execute"
	ActionClarify Action = "clarify"
)

// Decision 是澄清门的输出。
type Decision struct {
	Action   Action `json:"action"`
	Question string `json:"question,omitempty"`
}

// NeedsClarification 只有 clarify 且问题非空时才为 true。
func (d Decision) NeedsClarification() bool {
	return d.Action == ActionClarify && strings.TrimSpace(d.Question) != ""
}

// ParseDecision 从模型回复中提取决策，无法解析时一律视为 execute。
func ParseDecision(text string) Decision {
	var raw Decision
	if err := llm.ExtractJSON(strings.TrimSpace(text), &raw); err != nil {
		return Decision{Action: ActionExecute}
	}
	if raw.Action == ActionClarify && strings.TrimSpace(raw.Question) != "" {
		return Decision{Action: ActionClarify, Question: strings.TrimSpace(raw.Question)}
	}
	return Decision{Action: ActionExecute}
}

// ResumedGoal 返回恢复执行时交给运行时的目标。
func ResumedGoal(goal, input string) string {
	return goal + ResumeSeparator + input
}

// Gate 在执行前向模型确认目标是否足够明确。
type Gate struct {
	llm llm.Client
}

// NewGate 创建澄清门。
func NewGate(client llm.Client) *Gate {
	return &Gate{llm: client}
}

// Decide 发起一次不带工具的模型调用。调用失败作为 error 返回。
func (g *Gate) Decide(ctx context.Context, goal string) (Decision, error) {
	if g == nil || g.llm == nil {
		return Decision{}, xerrors.New(xerrors.CodeInitializationFailure, "澄清门未配置模型客户端")
	}
	resp, err := g.llm.Chat(ctx, llm.ChatRequest{
		System:   GateSystemPrompt,
		Messages: []llm.Message{llm.UserText(goal)},
	})
	if err != nil {
		return Decision{}, err
	}
	if resp == nil {
		return Decision{Action: ActionExecute}, nil
	}
	return ParseDecision(resp.Text), nil
}
