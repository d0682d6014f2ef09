package task

// TaskStats 聚合了任务状态的统计信息，常用于仪表盘或健康检查。
type TaskStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Blocked         int   `json:"blocked"`
	Completed       int   `json:"completed"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

func (s *TaskStats) add(task *Task) {
	s.Total++
	switch task.Status {
	case StatusPending:
		s.Pending++
	case StatusRunning:
		s.Running++
	case StatusBlocked:
		s.Blocked++
	case StatusCompleted:
		s.Completed++
	case StatusFailed:
		s.Failed++
	}
	updated := task.UpdatedAt.Unix()
	if updated > s.NewestUpdatedAt {
		s.NewestUpdatedAt = updated
	}
	if s.OldestUpdatedAt == 0 || updated < s.OldestUpdatedAt {
		s.OldestUpdatedAt = updated
	}
}
