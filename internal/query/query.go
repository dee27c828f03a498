// Package query filters, sorts, and paginates a task store snapshot.
// Sorting is stable so pagination stays deterministic across requests
// while the underlying data is unchanged.
package query

import (
	"sort"
	"strings"
	"time"

	"github.com/basket/taskd/internal/task"
)

// Pagination bounds.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Sort keys accepted by List.
const (
	SortCreatedAt = "created_at"
	SortPriority  = "priority"
	SortStatus    = "status"
	SortUpdatedAt = "updated_at"
)

// Filter narrows the snapshot. All set fields combine with AND; Tags is a
// comma-separated list with OR semantics within it (a task matches when its
// tag set intersects the requested list).
type Filter struct {
	Status   task.Status
	Priority task.Priority
	Category task.Category
	Assignee string
	Tags     string
}

// Params control one List call.
type Params struct {
	Filter     Filter
	SortBy     string // one of the Sort* keys; default created_at
	Descending bool   // descending is the caller-facing default
	Offset     int
	Limit      int
}

// Normalize clamps pagination and fills sort defaults, mirroring the
// clamping the HTTP layer advertises (limit 1-1000, default 100).
func (p *Params) Normalize() {
	if p.SortBy == "" {
		p.SortBy = SortCreatedAt
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
}

// ValidSortKey reports whether key names a supported sort field.
func ValidSortKey(key string) bool {
	switch key {
	case SortCreatedAt, SortPriority, SortStatus, SortUpdatedAt:
		return true
	}
	return false
}

// List applies filter, stable sort, and pagination to the snapshot.
// An offset beyond the filtered length yields an empty slice, not an error.
func List(snapshot []*task.Task, p Params) []*task.Task {
	p.Normalize()

	filtered := make([]*task.Task, 0, len(snapshot))
	for _, t := range snapshot {
		if matches(t, p.Filter) {
			filtered = append(filtered, t)
		}
	}

	sortTasks(filtered, p.SortBy, p.Descending)

	if p.Offset >= len(filtered) {
		return []*task.Task{}
	}
	end := p.Offset + p.Limit
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[p.Offset:end]
}

func matches(t *task.Task, f Filter) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Assignee != "" && t.Assignee != f.Assignee {
		return false
	}
	if f.Tags != "" && !tagsIntersect(t.Tags, f.Tags) {
		return false
	}
	return true
}

func tagsIntersect(taskTags []string, wanted string) bool {
	for _, raw := range strings.Split(wanted, ",") {
		want := strings.TrimSpace(raw)
		if want == "" {
			continue
		}
		for _, have := range taskTags {
			if have == want {
				return true
			}
		}
	}
	return false
}

func sortTasks(tasks []*task.Task, key string, descending bool) {
	var less func(a, b *task.Task) bool
	switch key {
	case SortPriority:
		less = func(a, b *task.Task) bool { return a.Priority.Rank() < b.Priority.Rank() }
	case SortStatus:
		less = func(a, b *task.Task) bool { return a.Status < b.Status }
	case SortUpdatedAt:
		// Null updated_at sorts as the type's minimum (zero time).
		less = func(a, b *task.Task) bool {
			return timeOrZero(a.UpdatedAt).Before(timeOrZero(b.UpdatedAt))
		}
	default: // created_at
		less = func(a, b *task.Task) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if descending {
			return less(tasks[j], tasks[i])
		}
		return less(tasks[i], tasks[j])
	})
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
