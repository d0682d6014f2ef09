package llm

import "context"

// Role 表示消息的发送方。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType 表示内容块的类型。
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Block 是消息中的一个内容块。
// tool_use 使用 ID/Name/Input；tool_result 使用 ToolUseID/Content/IsError。
type Block struct {
	Type      BlockType      `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

// TextBlock 构造文本块。
func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

// ToolUseBlock 构造工具调用块。
func ToolUseBlock(call ToolCall) Block {
	return Block{Type: BlockToolUse, ID: call.ID, Name: call.Name, Input: call.Input}
}

// ToolResultBlock 构造工具结果块。
func ToolResultBlock(toolUseID, content string, isError bool) Block {
	return Block{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// Message 是一轮对话。Blocks 为空时以 Text 作为纯文本内容。
type Message struct {
	Role   Role    `json:"role"`
	Text   string  `json:"text,omitempty"`
	Blocks []Block `json:"blocks,omitempty"`
}

// IsText 判断消息是否为纯文本形式。
func (m Message) IsText() bool { return len(m.Blocks) == 0 }

// UserText 构造用户文本消息。
func UserText(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// ToolSpec 是提供给模型的工具定义。
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCall 是模型请求的一次工具调用。
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// StopReason 表示模型停止生成的原因。
type StopReason string

const (
	StopToolUse StopReason = "tool_use"
	StopEndTurn StopReason = "end_turn"
)

// NormalizeStopReason 把提供方返回的原因归一为 tool_use 或 end_turn。
func NormalizeStopReason(raw string) StopReason {
	if raw == string(StopToolUse) {
		return StopToolUse
	}
	return StopEndTurn
}

// ChatRequest 是一次对话请求。
type ChatRequest struct {
	System   string
	Messages []Message
	Tools    []ToolSpec
}

// ChatResponse 是归一化后的模型响应。Text 为空表示响应中没有文本块。
type ChatResponse struct {
	StopReason StopReason
	Text       string
	ToolCalls  []ToolCall
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ClientFunc 允许以函数实现 Client。
type ClientFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

// Chat 实现 Client。
func (f ClientFunc) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return f(ctx, req)
}
