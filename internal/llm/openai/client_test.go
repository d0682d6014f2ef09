package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"OpenAgents/internal/llm"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error when api key is missing")
	}
}

func TestChatSuccess(t *testing.T) {
	var captured struct {
		Authorization string
		Body          map[string]any
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Authorization = r.Header.Get("Authorization")
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&captured.Body); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "tool_calls",
					"message": map[string]any{
						"role":    "assistant",
						"content": "checking",
						"tool_calls": []map[string]any{
							{
								"id":   "call_1",
								"type": "function",
								"function": map[string]any{
									"name":      "filesystem__dot__read",
									"arguments": `{"path":"notes.txt"}`,
								},
							},
						},
					},
				},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := client.Chat(context.Background(), llm.ChatRequest{
		System:   "system prompt",
		Messages: []llm.Message{llm.UserText("read notes")},
		Tools:    []llm.ToolSpec{{Name: "filesystem__dot__read", Description: "read", InputSchema: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.StopReason != llm.StopToolUse || resp.Text != "checking" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Input["path"] != "notes.txt" {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}

	if !strings.HasPrefix(captured.Authorization, "Bearer ") {
		t.Fatalf("authorization header missing: %q", captured.Authorization)
	}
	if captured.Body["model"] != defaultModelName {
		t.Fatalf("model field missing in request: %v", captured.Body["model"])
	}
	msgs, _ := captured.Body["messages"].([]any)
	if len(msgs) != 2 || msgs[0].(map[string]any)["role"] != "system" {
		t.Fatalf("system prompt should lead the messages: %v", msgs)
	}
}

func TestBuildMessagesExpandsToolResults(t *testing.T) {
	call := llm.ToolCall{ID: "call_1", Name: "x", Input: map[string]any{"a": 1}}
	msgs := buildMessages(llm.ChatRequest{Messages: []llm.Message{
		llm.UserText("go"),
		{Role: llm.RoleAssistant, Blocks: []llm.Block{llm.TextBlock("thinking"), llm.ToolUseBlock(call)}},
		{Role: llm.RoleUser, Blocks: []llm.Block{
			llm.ToolResultBlock("call_1", "{}", false),
			llm.ToolResultBlock("call_2", "Error: nope", true),
		}},
	}})
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[1].OfAssistant == nil || len(msgs[1].OfAssistant.ToolCalls) != 1 {
		t.Fatalf("assistant turn should carry the tool call")
	}
	if msgs[2].OfTool == nil || msgs[3].OfTool == nil {
		t.Fatalf("tool results should become tool messages")
	}
}

func TestChatHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = client.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{llm.UserText("test")}})
	if llm.ErrorKindOf(err) != llm.KindRateLimit {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}
