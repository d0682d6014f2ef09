package task

import (
	"slices"
	"strings"
	"time"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// SortOrder 决定列表按更新时间排序的方向。
type SortOrder string

const (
	SortByUpdatedDesc SortOrder = "desc"
	SortByUpdatedAsc  SortOrder = "asc"
)

// ParseSortOrder 解析 asc/desc，其他取值均视为倒序。
func ParseSortOrder(value string) SortOrder {
	if strings.EqualFold(strings.TrimSpace(value), string(SortByUpdatedAsc)) {
		return SortByUpdatedAsc
	}
	return SortByUpdatedDesc
}

// ListOptions 描述列表与统计查询的筛选条件。零值时间表示不限制。
type ListOptions struct {
	Limit        int
	Offset       int
	Statuses     []Status
	UpdatedSince time.Time
	UpdatedUntil time.Time
	HasResult    *bool
	Order        SortOrder
	Query        string
}

// ListOption 以函数式选项修改查询条件。
type ListOption func(*ListOptions)

func WithLimit(limit int) ListOption {
	return func(o *ListOptions) { o.Limit = limit }
}

func WithOffset(offset int) ListOption {
	return func(o *ListOptions) { o.Offset = offset }
}

// WithStatuses 只保留给定状态的任务，非法状态会被忽略。
func WithStatuses(statuses ...Status) ListOption {
	return func(o *ListOptions) { o.Statuses = slices.Clone(statuses) }
}

// WithUpdatedSince 只保留在 ts 之后（含）更新过的任务。
func WithUpdatedSince(ts time.Time) ListOption {
	return func(o *ListOptions) { o.UpdatedSince = ts }
}

// WithUpdatedUntil 只保留在 ts 之前（含）更新过的任务。
func WithUpdatedUntil(ts time.Time) ListOption {
	return func(o *ListOptions) { o.UpdatedUntil = ts }
}

// WithResultPresence 按是否已有运行结果筛选。
func WithResultPresence(hasResult bool) ListOption {
	return func(o *ListOptions) { o.HasResult = &hasResult }
}

func WithSortOrder(order SortOrder) ListOption {
	return func(o *ListOptions) { o.Order = order }
}

// WithQuery 在目标、澄清问题与结果摘要中做不区分大小写的子串匹配。
func WithQuery(query string) ListOption {
	return func(o *ListOptions) { o.Query = query }
}

func buildListOptions(opts []ListOption) ListOptions {
	var options ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.normalize()
	return options
}

// normalize 收敛分页范围、去重状态并统一查询串大小写。
func (o *ListOptions) normalize() {
	switch {
	case o.Limit <= 0:
		o.Limit = defaultListLimit
	case o.Limit > maxListLimit:
		o.Limit = maxListLimit
	}
	o.Offset = max(o.Offset, 0)
	if o.Order != SortByUpdatedAsc {
		o.Order = SortByUpdatedDesc
	}
	o.Query = strings.ToLower(strings.TrimSpace(o.Query))

	var statuses []Status
	for _, s := range o.Statuses {
		if IsValidStatus(s) && !slices.Contains(statuses, s) {
			statuses = append(statuses, s)
		}
	}
	o.Statuses = statuses
}

// Match 判断任务是否满足全部筛选条件。调用前需先 normalize。
func (o ListOptions) Match(t *Task) bool {
	if len(o.Statuses) > 0 && !slices.Contains(o.Statuses, t.Status) {
		return false
	}
	if !o.UpdatedSince.IsZero() && t.UpdatedAt.Before(o.UpdatedSince) {
		return false
	}
	if !o.UpdatedUntil.IsZero() && t.UpdatedAt.After(o.UpdatedUntil) {
		return false
	}
	if o.HasResult != nil && (t.Result != nil) != *o.HasResult {
		return false
	}
	if o.Query == "" {
		return true
	}
	fields := []string{t.Goal, t.BlockedReason}
	if t.Result != nil {
		fields = append(fields, t.Result.Summary)
	}
	return slices.ContainsFunc(fields, func(f string) bool {
		return strings.Contains(strings.ToLower(f), o.Query)
	})
}

// page 按更新时间、创建时间、ID 排序后截取当前页。
func (o ListOptions) page(tasks []*Task) []*Task {
	slices.SortFunc(tasks, func(a, b *Task) int {
		c := a.UpdatedAt.Compare(b.UpdatedAt)
		if c == 0 {
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if o.Order == SortByUpdatedDesc {
			c = -c
		}
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		return c
	})
	if o.Offset >= len(tasks) {
		return []*Task{}
	}
	tasks = tasks[o.Offset:]
	return tasks[:min(len(tasks), o.Limit)]
}
