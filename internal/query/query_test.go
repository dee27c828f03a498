package query

import (
	"fmt"
	"testing"
	"time"

	"github.com/basket/taskd/internal/task"
)

func snapshotFixture() []*task.Task {
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	mk := func(id int64, status task.Status, prio task.Priority, assignee string, tags ...string) *task.Task {
		return &task.Task{
			ID:        id,
			Title:     fmt.Sprintf("Task %d", id),
			Status:    status,
			Priority:  prio,
			Category:  task.CategoryDevelopment,
			Assignee:  assignee,
			Tags:      tags,
			CreatedAt: base.Add(time.Duration(id) * time.Minute),
		}
	}
	return []*task.Task{
		mk(1, task.StatusPending, task.PriorityLow, "sam", "backend"),
		mk(2, task.StatusInProgress, task.PriorityCritical, "lee", "frontend"),
		mk(3, task.StatusCompleted, task.PriorityMedium, "sam", "backend", "db"),
		mk(4, task.StatusPending, task.PriorityHigh, "", "infra"),
		mk(5, task.StatusBlocked, task.PriorityMedium, "lee"),
	}
}

func ids(tasks []*task.Task) []int64 {
	out := make([]int64, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func equalIDs(a []int64, b ...int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFiltersCombineWithAnd(t *testing.T) {
	got := List(snapshotFixture(), Params{Filter: Filter{
		Status:   task.StatusPending,
		Assignee: "sam",
	}})
	if !equalIDs(ids(got), 1) {
		t.Fatalf("status+assignee filter returned %v, want [1]", ids(got))
	}
}

func TestTagFilterIntersects(t *testing.T) {
	got := List(snapshotFixture(), Params{Filter: Filter{Tags: "db, frontend"}})
	if !equalIDs(ids(got), 2, 3) {
		t.Fatalf("tag filter returned %v, want [2 3]", ids(got))
	}

	none := List(snapshotFixture(), Params{Filter: Filter{Tags: "nonexistent"}})
	if len(none) != 0 {
		t.Fatalf("unknown tag matched %v", ids(none))
	}
}

func TestSortByPriority(t *testing.T) {
	got := List(snapshotFixture(), Params{SortBy: SortPriority, Descending: true})
	if !equalIDs(ids(got), 2, 4, 3, 5, 1) {
		t.Fatalf("priority desc order = %v, want [2 4 3 5 1]", ids(got))
	}

	asc := List(snapshotFixture(), Params{SortBy: SortPriority})
	if !equalIDs(ids(asc), 1, 3, 5, 4, 2) {
		t.Fatalf("priority asc order = %v, want [1 3 5 4 2]", ids(asc))
	}
}

func TestSortStableOnTies(t *testing.T) {
	// Tasks 3 and 5 are both medium; insertion order must hold on ties.
	got := List(snapshotFixture(), Params{SortBy: SortPriority})
	var medium []int64
	for _, tk := range got {
		if tk.Priority == task.PriorityMedium {
			medium = append(medium, tk.ID)
		}
	}
	if !equalIDs(medium, 3, 5) {
		t.Fatalf("tie order = %v, want [3 5]", medium)
	}
}

func TestSortByUpdatedAtTreatsNilAsZero(t *testing.T) {
	snapshot := snapshotFixture()
	ts := snapshot[0].CreatedAt.Add(time.Hour)
	snapshot[4].UpdatedAt = &ts

	got := List(snapshot, Params{SortBy: SortUpdatedAt, Descending: true})
	if got[0].ID != 5 {
		t.Fatalf("task with set updated_at should sort first, got %v", ids(got))
	}
}

func TestPagination(t *testing.T) {
	got := List(snapshotFixture(), Params{Offset: 1, Limit: 2})
	if !equalIDs(ids(got), 2, 3) {
		t.Fatalf("page = %v, want [2 3]", ids(got))
	}
}

func TestPaginationWindowLaw(t *testing.T) {
	// Two consecutive pages equal one double-size page.
	first := List(snapshotFixture(), Params{Offset: 0, Limit: 2})
	second := List(snapshotFixture(), Params{Offset: 2, Limit: 2})
	combined := List(snapshotFixture(), Params{Offset: 0, Limit: 4})

	joined := append(ids(first), ids(second)...)
	if !equalIDs(joined, ids(combined)...) {
		t.Fatalf("page stitching mismatch: %v + %v != %v", ids(first), ids(second), ids(combined))
	}
}

func TestOffsetBeyondLength(t *testing.T) {
	got := List(snapshotFixture(), Params{Offset: 50})
	if got == nil || len(got) != 0 {
		t.Fatalf("offset past end should yield empty slice, got %v", got)
	}
}

func TestNormalizeClampsLimit(t *testing.T) {
	p := Params{Limit: 5000, Offset: -3}
	p.Normalize()
	if p.Limit != MaxLimit {
		t.Fatalf("limit = %d, want %d", p.Limit, MaxLimit)
	}
	if p.Offset != 0 {
		t.Fatalf("offset = %d, want 0", p.Offset)
	}
	if p.SortBy != SortCreatedAt {
		t.Fatalf("default sort = %q, want %q", p.SortBy, SortCreatedAt)
	}
}

func TestValidSortKey(t *testing.T) {
	for _, key := range []string{SortCreatedAt, SortPriority, SortStatus, SortUpdatedAt} {
		if !ValidSortKey(key) {
			t.Fatalf("%q should be a valid sort key", key)
		}
	}
	if ValidSortKey("title") {
		t.Fatalf("title should not be a valid sort key")
	}
}
