package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"OpenAgents/sdk/go/openagents"
)

// 使用内存中的假服务演示 SDK 的提交、恢复与取结果流程。
func main() {
	status := openagents.StatusBlocked
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tasks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"task_id": "task-demo"})
	})
	mux.HandleFunc("GET /tasks/task-demo/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openagents.TaskStatus{
			ID:            "task-demo",
			Status:        status,
			BlockedReason: "Which file should I write?",
			CreatedAt:     time.Now().UTC(),
			UpdatedAt:     time.Now().UTC(),
		})
	})
	mux.HandleFunc("POST /tasks/task-demo/resume", func(w http.ResponseWriter, r *http.Request) {
		status = openagents.StatusCompleted
		_ = json.NewEncoder(w).Encode(map[string]bool{"resumed": true})
	})
	mux.HandleFunc("GET /tasks/task-demo/result", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(openagents.TaskResult{
			TaskID:    "task-demo",
			Status:    openagents.StatusCompleted,
			Summary:   "Wrote notes.txt.",
			Artifacts: []openagents.Artifact{},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := openagents.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := client.SubmitTask(ctx, "write a file")
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted task %s\n", id)

	st, err := client.Status(ctx, id)
	if err != nil {
		panic(err)
	}
	fmt.Printf("task %s is %s: %s\n", id, st.Status, st.BlockedReason)

	if err := client.Resume(ctx, id, "notes.txt"); err != nil {
		panic(err)
	}
	result, err := client.Result(ctx, id)
	if err != nil {
		panic(err)
	}
	fmt.Printf("task %s %s: %s\n", result.TaskID, result.Status, result.Summary)
}
