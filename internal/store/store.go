// Package store owns all task records. A single mutex serializes mutations;
// reads copy records out under the lock so callers never observe a
// partially-updated task. State is volatile and lives only for the
// daemon process.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/basket/taskd/internal/bus"
	"github.com/basket/taskd/internal/shared"
	"github.com/basket/taskd/internal/task"
)

// BulkLimit is the maximum batch size accepted by BulkCreate.
const BulkLimit = 100

// Recorder journals mutations. Nil-safe via the store's guards; the audit
// package provides the real implementation.
type Recorder interface {
	Record(ctx context.Context, traceID, op string, taskID int64, detail string)
}

// Invalidator clears the aggregation cache. A delete can change every
// statistic, so the store invalidates synchronously before returning.
type Invalidator interface {
	Invalidate()
}

// Config wires the store's collaborators. All of them are optional:
// a bare Store is fully functional, which keeps unit tests small.
type Config struct {
	Bus     *bus.Bus
	Journal Recorder
	Cache   Invalidator
	Now     func() time.Time // defaults to time.Now
}

// Store is the in-memory task store. IDs are assigned from a monotonic
// counter starting at 1 and are never reused, even after deletion.
type Store struct {
	mu      sync.RWMutex
	tasks   map[int64]*task.Task
	order   []int64 // insertion order for stable snapshots
	nextID  int64
	started time.Time

	now     func() time.Time
	bus     *bus.Bus
	journal Recorder
	cache   Invalidator
}

// New creates an empty store.
func New(cfg Config) *Store {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		tasks:   make(map[int64]*task.Task),
		now:     now,
		started: now().UTC(),
		bus:     cfg.Bus,
		journal: cfg.Journal,
		cache:   cfg.Cache,
	}
}

// SetCache attaches the aggregation cache after construction. The store and
// the aggregation engine reference each other, so one side has to be wired
// late; this must happen before the store serves requests.
func (s *Store) SetCache(c Invalidator) {
	s.cache = c
}

// Create validates the request, assigns the next sequential ID, and persists
// the task with status pending. Every dependency must reference an existing
// task; self-references are impossible at create time since the new ID is
// not yet assigned. On success a background notification is published.
func (s *Store) Create(ctx context.Context, req *task.CreateRequest) (*task.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	for _, dep := range req.Dependencies {
		if _, ok := s.tasks[dep]; !ok {
			s.mu.Unlock()
			return nil, &task.DependencyNotFoundError{ID: dep}
		}
	}

	s.nextID++
	now := s.now().UTC()
	priority := req.Priority
	if priority == "" {
		priority = task.PriorityMedium
	}
	t := &task.Task{
		ID:             s.nextID,
		Title:          req.Title,
		Description:    req.Description,
		Status:         task.StatusPending,
		Priority:       priority,
		Category:       req.Category,
		Assignee:       req.Assignee,
		EstimatedHours: req.EstimatedHours,
		Tags:           append([]string(nil), req.Tags...),
		Dependencies:   append([]int64(nil), req.Dependencies...),
		CreatedAt:      now,
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if t.Dependencies == nil {
		t.Dependencies = []int64{}
	}
	t.Checksum = task.Checksum(t)

	s.tasks[t.ID] = t
	s.order = append(s.order, t.ID)
	out := t.Clone()
	s.mu.Unlock()

	s.record(ctx, "create", out.ID, string(out.Category))
	s.publish(ctx, bus.TopicTaskCreated, out.ID, string(out.Status), 0)
	return out, nil
}

// Get returns a copy of the task, or NotFoundError.
func (s *Store) Get(ctx context.Context, id int64) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, &task.NotFoundError{ID: id}
	}
	return t.Clone(), nil
}

// List returns a consistent snapshot of all tasks in insertion order.
// Ordering beyond that is the query engine's concern.
func (s *Store) List(ctx context.Context) []*task.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*task.Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].Clone())
	}
	return out
}

// Update applies a partial update: only supplied fields are replaced.
// Supplied dependencies must exist in the store or equal the task's own ID
// (self-reference is permitted on update, unlike create). The first
// transition to completed stamps completed_at; it is never reset.
func (s *Store) Update(ctx context.Context, id int64, req *task.UpdateRequest) (*task.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return nil, &task.NotFoundError{ID: id}
	}
	if req.Dependencies != nil {
		for _, dep := range *req.Dependencies {
			if _, exists := s.tasks[dep]; !exists && dep != id {
				s.mu.Unlock()
				return nil, &task.DependencyNotFoundError{ID: dep}
			}
		}
	}

	if req.Title != nil {
		t.Title = *req.Title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Status != nil {
		t.Status = *req.Status
	}
	if req.Priority != nil {
		t.Priority = *req.Priority
	}
	if req.Category != nil {
		t.Category = *req.Category
	}
	if req.Assignee != nil {
		t.Assignee = *req.Assignee
	}
	if req.EstimatedHours != nil {
		v := *req.EstimatedHours
		t.EstimatedHours = &v
	}
	if req.ActualHours != nil {
		v := *req.ActualHours
		t.ActualHours = &v
	}
	if req.Tags != nil {
		t.Tags = append([]string(nil), (*req.Tags)...)
		if t.Tags == nil {
			t.Tags = []string{}
		}
	}
	if req.Dependencies != nil {
		t.Dependencies = append([]int64(nil), (*req.Dependencies)...)
		if t.Dependencies == nil {
			t.Dependencies = []int64{}
		}
	}

	now := s.now().UTC()
	t.UpdatedAt = &now
	if req.Status != nil && *req.Status == task.StatusCompleted && t.CompletedAt == nil {
		completed := now
		t.CompletedAt = &completed
	}
	t.Checksum = task.Checksum(t)

	out := t.Clone()
	s.mu.Unlock()

	s.record(ctx, "update", out.ID, string(out.Status))
	s.publish(ctx, bus.TopicTaskUpdated, out.ID, string(out.Status), 0)
	return out, nil
}

// Delete removes the task and prunes its ID from every other task's
// dependencies, bumping those tasks' updated_at. It returns the number of
// dependent tasks touched and invalidates the aggregation cache before
// returning, since a deletion can change every statistic.
func (s *Store) Delete(ctx context.Context, id int64) (int, error) {
	s.mu.Lock()
	if _, ok := s.tasks[id]; !ok {
		s.mu.Unlock()
		return 0, &task.NotFoundError{ID: id}
	}

	now := s.now().UTC()
	affected := 0
	for _, t := range s.tasks {
		if t.ID == id || !t.DependsOn(id) {
			continue
		}
		deps := t.Dependencies[:0]
		for _, dep := range t.Dependencies {
			if dep != id {
				deps = append(deps, dep)
			}
		}
		t.Dependencies = deps
		ts := now
		t.UpdatedAt = &ts
		t.Checksum = task.Checksum(t)
		affected++
	}

	delete(s.tasks, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if s.cache != nil {
		s.cache.Invalidate()
	}
	s.record(ctx, "delete", id, fmt.Sprintf("affected=%d", affected))
	s.publish(ctx, bus.TopicTaskDeleted, id, "", affected)
	return affected, nil
}

// BulkCreate creates the batch sequentially in input order, so later items
// may depend on earlier items of the same batch. Batches over BulkLimit are
// rejected atomically before anything is created. A mid-batch failure stops
// the batch and reports the failing index along with the IDs already
// created; earlier items remain in the store.
func (s *Store) BulkCreate(ctx context.Context, reqs []*task.CreateRequest) ([]*task.Task, error) {
	if len(reqs) > BulkLimit {
		return nil, &task.BulkLimitExceededError{Count: len(reqs), Limit: BulkLimit}
	}

	created := make([]*task.Task, 0, len(reqs))
	for i, req := range reqs {
		t, err := s.Create(ctx, req)
		if err != nil {
			ids := make([]int64, len(created))
			for j, c := range created {
				ids[j] = c.ID
			}
			return created, &task.BulkItemError{Index: i, CreatedIDs: ids, Err: err}
		}
		created = append(created, t)
	}
	s.record(ctx, "bulk_create", 0, fmt.Sprintf("count=%d", len(created)))
	return created, nil
}

// Count returns the number of tasks currently in the store.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// StartedAt returns when the store was created (daemon start).
func (s *Store) StartedAt() time.Time { return s.started }

// ApproxMemoryBytes estimates the store's footprint as the size of the
// serialized task set, matching the health endpoint's contract.
func (s *Store) ApproxMemoryBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := int64(0)
	for _, t := range s.tasks {
		if b, err := json.Marshal(t); err == nil {
			total += int64(len(b))
		}
	}
	return total
}

func (s *Store) record(ctx context.Context, op string, taskID int64, detail string) {
	if s.journal == nil {
		return
	}
	s.journal.Record(ctx, shared.TraceID(ctx), op, taskID, detail)
}

func (s *Store) publish(ctx context.Context, topic string, taskID int64, status string, affected int) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(topic, bus.TaskEvent{
		TaskID:   taskID,
		Status:   status,
		TraceID:  shared.TraceID(ctx),
		Affected: affected,
	})
}
