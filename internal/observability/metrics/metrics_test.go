package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveHTTPRequest("/tasks", http.MethodPost, http.StatusAccepted, 20*time.Millisecond)
	ObserveTaskTransition("running")
	ObserveToolInvocation("filesystem.read", "success", time.Millisecond)
	ObserveAgentRun(3)
	ObserveLLMCall("anthropic", "success")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		`openagents_http_requests_total{code="202",handler="/tasks",method="POST"}`,
		`openagents_task_transitions_total{status="running"}`,
		`openagents_tool_invocations_total{outcome="success",tool="filesystem.read"}`,
		`openagents_agent_iterations_count`,
		`openagents_llm_calls_total{outcome="success",provider="anthropic"}`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
