package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/basket/taskd/internal/task"
)

type fakeInvalidator struct {
	calls int
}

func (f *fakeInvalidator) Invalidate() { f.calls++ }

func newTestStore() *Store {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	return New(Config{
		Now: func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		},
	})
}

func mustCreate(t *testing.T, s *Store, title string) *task.Task {
	t.Helper()
	created, err := s.Create(context.Background(), &task.CreateRequest{
		Title:    title,
		Category: task.CategoryDevelopment,
	})
	if err != nil {
		t.Fatalf("create %q: %v", title, err)
	}
	return created
}

func TestCreateDefaults(t *testing.T) {
	s := newTestStore()
	created := mustCreate(t, s, "Implement retry backoff")

	if created.ID != 1 {
		t.Fatalf("first ID = %d, want 1", created.ID)
	}
	if created.Status != task.StatusPending {
		t.Fatalf("initial status = %s, want pending", created.Status)
	}
	if created.Priority != task.PriorityMedium {
		t.Fatalf("default priority = %s, want medium", created.Priority)
	}
	if created.Tags == nil || len(created.Tags) != 0 {
		t.Fatalf("tags should default to empty slice, got %#v", created.Tags)
	}
	if created.Dependencies == nil || len(created.Dependencies) != 0 {
		t.Fatalf("dependencies should default to empty slice, got %#v", created.Dependencies)
	}
	if created.UpdatedAt != nil || created.CompletedAt != nil {
		t.Fatalf("updated_at/completed_at should start nil")
	}
	if created.ActualHours != nil {
		t.Fatalf("actual_hours should start nil")
	}
	if len(created.Checksum) != task.ChecksumLen {
		t.Fatalf("checksum length = %d, want %d", len(created.Checksum), task.ChecksumLen)
	}
	if created.CreatedAt.IsZero() {
		t.Fatalf("created_at not set")
	}
}

func TestCreateRejectsMissingDependency(t *testing.T) {
	s := newTestStore()
	_, err := s.Create(context.Background(), &task.CreateRequest{
		Title:        "Depends on a ghost",
		Category:     task.CategoryBugfix,
		Dependencies: []int64{42},
	})
	var depErr *task.DependencyNotFoundError
	if !errors.As(err, &depErr) {
		t.Fatalf("expected DependencyNotFoundError, got %v", err)
	}
	if depErr.ID != 42 {
		t.Fatalf("error reports dependency %d, want 42", depErr.ID)
	}
	if s.Count() != 0 {
		t.Fatalf("failed create must not persist anything")
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore()
	_, err := s.Get(context.Background(), 99999)
	var nf *task.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := newTestStore()
	created := mustCreate(t, s, "Audit dependency graph")

	got, err := s.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Title = "mutated by caller"

	again, _ := s.Get(context.Background(), created.ID)
	if again.Title != "Audit dependency graph" {
		t.Fatalf("store handed out a live reference")
	}
}

func TestUpdatePartialAndChecksum(t *testing.T) {
	s := newTestStore()
	created := mustCreate(t, s, "Document cache invalidation")

	title := "Document cache invalidation rules"
	prio := task.PriorityHigh
	updated, err := s.Update(context.Background(), created.ID, &task.UpdateRequest{
		Title:    &title,
		Priority: &prio,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != title || updated.Priority != prio {
		t.Fatalf("supplied fields not applied")
	}
	if updated.Category != created.Category {
		t.Fatalf("untouched field changed")
	}
	if updated.UpdatedAt == nil {
		t.Fatalf("updated_at not stamped")
	}
	if updated.Checksum == created.Checksum {
		t.Fatalf("checksum not recomputed after update")
	}
}

func TestUpdateCompletedAtSetOnce(t *testing.T) {
	s := newTestStore()
	created := mustCreate(t, s, "Roll out feature flag")
	ctx := context.Background()

	completed := task.StatusCompleted
	first, err := s.Update(ctx, created.ID, &task.UpdateRequest{Status: &completed})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if first.CompletedAt == nil {
		t.Fatalf("completed_at not set on first completion")
	}

	pending := task.StatusPending
	if _, err := s.Update(ctx, created.ID, &task.UpdateRequest{Status: &pending}); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	second, err := s.Update(ctx, created.ID, &task.UpdateRequest{Status: &completed})
	if err != nil {
		t.Fatalf("re-complete: %v", err)
	}
	if !second.CompletedAt.Equal(*first.CompletedAt) {
		t.Fatalf("completed_at changed on re-completion: %v vs %v", second.CompletedAt, first.CompletedAt)
	}
}

func TestUpdateAllowsSelfReference(t *testing.T) {
	s := newTestStore()
	created := mustCreate(t, s, "Self-referential chore")

	deps := []int64{created.ID}
	updated, err := s.Update(context.Background(), created.ID, &task.UpdateRequest{Dependencies: &deps})
	if err != nil {
		t.Fatalf("self-reference rejected on update: %v", err)
	}
	if !updated.DependsOn(created.ID) {
		t.Fatalf("self-reference not stored")
	}
}

func TestUpdateRejectsMissingDependency(t *testing.T) {
	s := newTestStore()
	created := mustCreate(t, s, "Realistic dependencies only")

	deps := []int64{12345}
	_, err := s.Update(context.Background(), created.ID, &task.UpdateRequest{Dependencies: &deps})
	var depErr *task.DependencyNotFoundError
	if !errors.As(err, &depErr) {
		t.Fatalf("expected DependencyNotFoundError, got %v", err)
	}
}

func TestDeletePrunesDependents(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	inv := &fakeInvalidator{}
	s.SetCache(inv)

	base := mustCreate(t, s, "Provision database")
	dependent, err := s.Create(ctx, &task.CreateRequest{
		Title:        "Run migrations",
		Category:     task.CategoryDeployment,
		Dependencies: []int64{base.ID},
	})
	if err != nil {
		t.Fatalf("create dependent: %v", err)
	}
	bystander := mustCreate(t, s, "Unrelated cleanup")

	affected, err := s.Delete(ctx, base.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if affected != 1 {
		t.Fatalf("affected = %d, want 1", affected)
	}
	if inv.calls != 1 {
		t.Fatalf("cache invalidated %d times, want 1", inv.calls)
	}

	pruned, err := s.Get(ctx, dependent.ID)
	if err != nil {
		t.Fatalf("get dependent: %v", err)
	}
	if pruned.DependsOn(base.ID) {
		t.Fatalf("deleted ID still referenced")
	}
	if pruned.UpdatedAt == nil {
		t.Fatalf("pruned task's updated_at not bumped")
	}
	if pruned.Checksum == dependent.Checksum {
		t.Fatalf("pruned task's checksum not recomputed")
	}

	untouched, _ := s.Get(ctx, bystander.ID)
	if untouched.UpdatedAt != nil {
		t.Fatalf("bystander was touched by the delete")
	}
	if _, err := s.Get(ctx, base.ID); err == nil {
		t.Fatalf("deleted task still retrievable")
	}
}

func TestDeleteNotFound(t *testing.T) {
	s := newTestStore()
	_, err := s.Delete(context.Background(), 99999)
	var nf *task.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestIDsNeverReused(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	first := mustCreate(t, s, "Ephemeral task")
	if _, err := s.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	second := mustCreate(t, s, "Successor task")
	if second.ID != first.ID+1 {
		t.Fatalf("ID %d was reused or skipped; got %d", first.ID, second.ID)
	}
}

func TestListInsertionOrder(t *testing.T) {
	s := newTestStore()
	for i := 0; i < 5; i++ {
		mustCreate(t, s, fmt.Sprintf("Ordered task %d", i))
	}
	snapshot := s.List(context.Background())
	if len(snapshot) != 5 {
		t.Fatalf("snapshot length = %d, want 5", len(snapshot))
	}
	for i, tk := range snapshot {
		if tk.ID != int64(i+1) {
			t.Fatalf("snapshot[%d].ID = %d, want %d", i, tk.ID, i+1)
		}
	}
}

func TestBulkCreateLimit(t *testing.T) {
	s := newTestStore()
	reqs := make([]*task.CreateRequest, BulkLimit+1)
	for i := range reqs {
		reqs[i] = &task.CreateRequest{Title: fmt.Sprintf("Bulk item %d", i), Category: task.CategoryTesting}
	}

	_, err := s.BulkCreate(context.Background(), reqs)
	var limitErr *task.BulkLimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected BulkLimitExceededError, got %v", err)
	}
	if s.Count() != 0 {
		t.Fatalf("over-limit batch must create nothing, store has %d tasks", s.Count())
	}
}

func TestBulkCreatePartialFailure(t *testing.T) {
	s := newTestStore()
	reqs := []*task.CreateRequest{
		{Title: "Bulk ok one", Category: task.CategoryTesting},
		{Title: "Bulk ok two", Category: task.CategoryTesting},
		{Title: "Bulk bad", Category: task.CategoryTesting, Dependencies: []int64{777}},
		{Title: "Never reached", Category: task.CategoryTesting},
	}

	created, err := s.BulkCreate(context.Background(), reqs)
	var itemErr *task.BulkItemError
	if !errors.As(err, &itemErr) {
		t.Fatalf("expected BulkItemError, got %v", err)
	}
	if itemErr.Index != 2 {
		t.Fatalf("failing index = %d, want 2", itemErr.Index)
	}
	if len(itemErr.CreatedIDs) != 2 {
		t.Fatalf("created IDs = %v, want two entries", itemErr.CreatedIDs)
	}
	if len(created) != 2 || s.Count() != 2 {
		t.Fatalf("earlier items should remain; created=%d stored=%d", len(created), s.Count())
	}
}

func TestBulkCreateIntraBatchDependency(t *testing.T) {
	s := newTestStore()
	reqs := []*task.CreateRequest{
		{Title: "Design schema", Category: task.CategoryDevelopment},
		{Title: "Apply schema", Category: task.CategoryDevelopment, Dependencies: []int64{1}},
	}
	created, err := s.BulkCreate(context.Background(), reqs)
	if err != nil {
		t.Fatalf("bulk create: %v", err)
	}
	if !created[1].DependsOn(created[0].ID) {
		t.Fatalf("later batch item could not depend on earlier item")
	}
}
