package task

import (
	"context"
	stdErrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"OpenAgents/internal/agent"
	xerrors "OpenAgents/internal/errors"
)

func newClockedStore() (*MemoryStore, *time.Time) {
	store := NewMemoryStore()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return store, &now
}

func TestMemoryStoreCreateAndGetClones(t *testing.T) {
	store, _ := newClockedStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Task{ID: "t1", TraceID: "tr1", Goal: "g"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Task{ID: "t1"}); !stdErrors.Is(err, ErrTaskConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := store.Create(ctx, &Task{}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPending || got.CreatedAt.IsZero() || !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Fatalf("unexpected task: %+v", got)
	}
	got.Goal = "mutated"
	again, _ := store.Get(ctx, "t1")
	if again.Goal != "g" {
		t.Fatalf("store must hand out copies")
	}
	if _, err := store.Get(ctx, "missing"); !stdErrors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreTransitionGraph(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusBlocked, false},
		{StatusRunning, StatusBlocked, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusPending, false},
		{StatusBlocked, StatusRunning, true},
		{StatusBlocked, StatusCompleted, false},
		{StatusBlocked, StatusFailed, false},
		{StatusBlocked, StatusPending, false},
		{StatusCompleted, StatusRunning, false},
		{StatusCompleted, StatusPending, false},
		{StatusFailed, StatusRunning, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestMemoryStoreTransitionRecordsReasonAndResult(t *testing.T) {
	store, _ := newClockedStore()
	ctx := context.Background()
	_ = store.Create(ctx, &Task{ID: "t1", Goal: "g"})

	if _, err := store.Transition(ctx, "t1", StatusRunning, Update{}); err != nil {
		t.Fatalf("running: %v", err)
	}
	blocked, err := store.Transition(ctx, "t1", StatusBlocked, Update{BlockedReason: "why?"})
	if err != nil || blocked.BlockedReason != "why?" {
		t.Fatalf("blocked: %+v %v", blocked, err)
	}

	_, err = store.Transition(ctx, "t1", StatusCompleted, Update{})
	if xerrors.CodeOf(err) != CodeTaskInvalidTransition {
		t.Fatalf("blocked must not jump to a terminal state, got %v", err)
	}

	resumed, err := store.Resume(ctx, "t1", "answer")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != StatusRunning || resumed.BlockedReason != "" || resumed.ResumeInput != "answer" {
		t.Fatalf("unexpected resumed task: %+v", resumed)
	}

	result := &agent.Result{TaskID: "t1", Status: agent.StatusCompleted, Summary: "ok", Artifacts: []agent.Artifact{}}
	done, err := store.Transition(ctx, "t1", StatusCompleted, Update{Result: result, BlockedReason: "ignored"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.BlockedReason != "" || done.Result == nil || done.Result.Summary != "ok" {
		t.Fatalf("unexpected completed task: %+v", done)
	}
	result.Summary = "mutated"
	stored, _ := store.Get(ctx, "t1")
	if stored.Result.Summary != "ok" {
		t.Fatalf("result must be copied into the store")
	}

	if _, err := store.Transition(ctx, "t1", StatusRunning, Update{}); xerrors.CodeOf(err) != CodeTaskInvalidTransition {
		t.Fatalf("terminal tasks cannot move, got %v", err)
	}
	if _, err := store.Transition(ctx, "missing", StatusRunning, Update{}); !stdErrors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreResumeRequiresBlocked(t *testing.T) {
	store, _ := newClockedStore()
	ctx := context.Background()
	_ = store.Create(ctx, &Task{ID: "t1"})
	before, _ := store.Get(ctx, "t1")

	if _, err := store.Resume(ctx, "t1", "x"); !stdErrors.Is(err, ErrTaskNotBlocked) {
		t.Fatalf("expected not blocked, got %v", err)
	}
	after, _ := store.Get(ctx, "t1")
	if after.Status != StatusPending || !after.UpdatedAt.Equal(before.UpdatedAt) || after.ResumeInput != "" {
		t.Fatalf("rejected resume changed the task: %+v", after)
	}
	if _, err := store.Resume(ctx, "missing", "x"); !stdErrors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreConcurrentResumeSingleWinner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Create(ctx, &Task{ID: "t1"})
	_, _ = store.Transition(ctx, "t1", StatusRunning, Update{})
	_, _ = store.Transition(ctx, "t1", StatusBlocked, Update{BlockedReason: "?"})

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Resume(ctx, "t1", "input"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("exactly one resume should win, got %d", wins.Load())
	}
}

func TestMemoryStoreListOrderingAndPaging(t *testing.T) {
	store, _ := newClockedStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_ = store.Create(ctx, &Task{ID: id, Goal: "goal " + id})
	}
	_, _ = store.Transition(ctx, "a", StatusRunning, Update{})

	desc, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(desc) != 3 || desc[0].ID != "a" || desc[1].ID != "c" || desc[2].ID != "b" {
		t.Fatalf("unexpected desc order: %v", ids(desc))
	}

	asc, _ := store.List(ctx, buildListOptions([]ListOption{WithSortOrder(SortByUpdatedAsc), WithLimit(2)}))
	if len(asc) != 2 || asc[0].ID != "b" || asc[1].ID != "c" {
		t.Fatalf("unexpected asc page: %v", ids(asc))
	}

	page, _ := store.List(ctx, buildListOptions([]ListOption{WithOffset(5)}))
	if len(page) != 0 {
		t.Fatalf("offset past the end should be empty, got %v", ids(page))
	}

	running, _ := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusRunning, "bogus")}))
	if len(running) != 1 || running[0].ID != "a" {
		t.Fatalf("unexpected status filter: %v", ids(running))
	}

	stats, _ := store.Stats(ctx, ListOptions{})
	if stats.Total != 3 || stats.Pending != 2 || stats.Running != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.OldestUpdatedAt == 0 || stats.NewestUpdatedAt < stats.OldestUpdatedAt {
		t.Fatalf("unexpected update range: %+v", stats)
	}
}

func TestParseSortOrder(t *testing.T) {
	if ParseSortOrder(" ASC ") != SortByUpdatedAsc {
		t.Fatalf("asc should parse")
	}
	if ParseSortOrder("whatever") != SortByUpdatedDesc {
		t.Fatalf("unknown order falls back to desc")
	}
}

func ids(tasks []*Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.ID)
	}
	return out
}

func TestListOptionsMatch(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	done := &Task{ID: "x", Goal: "Write notes", Status: StatusCompleted, UpdatedAt: base,
		Result: &agent.Result{Summary: "Wrote NOTES.txt"}}

	cases := []struct {
		name string
		opts []ListOption
		want bool
	}{
		{"no filters", nil, true},
		{"status hit", []ListOption{WithStatuses(StatusCompleted)}, true},
		{"status miss", []ListOption{WithStatuses(StatusBlocked)}, false},
		{"since inclusive", []ListOption{WithUpdatedSince(base)}, true},
		{"since after", []ListOption{WithUpdatedSince(base.Add(time.Second))}, false},
		{"until before", []ListOption{WithUpdatedUntil(base.Add(-time.Second))}, false},
		{"has result", []ListOption{WithResultPresence(true)}, true},
		{"no result wanted", []ListOption{WithResultPresence(false)}, false},
		{"query in summary", []ListOption{WithQuery("  notes.TXT ")}, true},
		{"query miss", []ListOption{WithQuery("deploy")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := buildListOptions(tc.opts).Match(done); got != tc.want {
				t.Fatalf("Match() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBuildListOptionsClampsLimit(t *testing.T) {
	if got := buildListOptions([]ListOption{WithLimit(1000), WithOffset(-3)}); got.Limit != maxListLimit || got.Offset != 0 {
		t.Fatalf("unexpected options: %+v", got)
	}
	if got := buildListOptions(nil); got.Limit != defaultListLimit || got.Order != SortByUpdatedDesc {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}
