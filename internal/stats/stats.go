// Package stats computes summary statistics and productivity analytics over
// the full task set. The summary is memoized for a fixed TTL; productivity
// is always recomputed. An empty task set yields zero-valued aggregates,
// never an error.
package stats

import (
	"math"
	"sync"
	"time"

	"github.com/basket/taskd/internal/task"
)

// DefaultTTL is how long a computed summary stays fresh.
const DefaultTTL = 60 * time.Second

const summaryCacheKey = "stats_summary"

// UnassignedKey groups tasks with no assignee in the per-assignee maps.
const UnassignedKey = "unassigned"

// Summary is the cached statistics object. Field names follow the wire shape.
type Summary struct {
	Total                 int            `json:"total"`
	ByStatus              map[string]int `json:"by_status"`
	ByPriority            map[string]int `json:"by_priority"`
	ByCategory            map[string]int `json:"by_category"`
	ByAssignee            map[string]int `json:"by_assignee"`
	CompletionRate        float64        `json:"completion_rate"`
	AverageEstimatedHours float64        `json:"average_estimated_hours"`
	AverageActualHours    float64        `json:"average_actual_hours"`
	BlockedTasks          int            `json:"blocked_tasks"`
}

// AssigneeProductivity is the per-assignee breakdown in Productivity.
type AssigneeProductivity struct {
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	InProgress     int     `json:"in_progress"`
	EstimatedHours float64 `json:"estimated_hours"`
	ActualHours    float64 `json:"actual_hours"`
}

// Productivity is the always-recomputed analytics object.
type Productivity struct {
	TotalEstimatedHours float64                          `json:"total_estimated_hours"`
	TotalActualHours    float64                          `json:"total_actual_hours"`
	EfficiencyRate      float64                          `json:"efficiency_rate"`
	TasksByAssignee     map[string]*AssigneeProductivity `json:"tasks_by_assignee"`
}

// ComputeSummary builds a Summary from a snapshot.
func ComputeSummary(tasks []*task.Task) *Summary {
	s := &Summary{
		ByStatus:   map[string]int{},
		ByPriority: map[string]int{},
		ByCategory: map[string]int{},
		ByAssignee: map[string]int{},
	}
	var estSum, actSum float64
	var estN, actN int

	for _, t := range tasks {
		s.Total++
		s.ByStatus[string(t.Status)]++
		s.ByPriority[string(t.Priority)]++
		s.ByCategory[string(t.Category)]++
		s.ByAssignee[assigneeKey(t.Assignee)]++

		if t.EstimatedHours != nil {
			estSum += *t.EstimatedHours
			estN++
		}
		if t.ActualHours != nil {
			actSum += *t.ActualHours
			actN++
		}
	}

	if s.Total > 0 {
		s.CompletionRate = round2(float64(s.ByStatus[string(task.StatusCompleted)]) / float64(s.Total) * 100)
	}
	if estN > 0 {
		s.AverageEstimatedHours = round2(estSum / float64(estN))
	}
	if actN > 0 {
		s.AverageActualHours = round2(actSum / float64(actN))
	}
	s.BlockedTasks = s.ByStatus[string(task.StatusBlocked)]
	return s
}

// ComputeProductivity builds a Productivity from a snapshot.
func ComputeProductivity(tasks []*task.Task) *Productivity {
	p := &Productivity{TasksByAssignee: map[string]*AssigneeProductivity{}}

	for _, t := range tasks {
		key := assigneeKey(t.Assignee)
		a, ok := p.TasksByAssignee[key]
		if !ok {
			a = &AssigneeProductivity{}
			p.TasksByAssignee[key] = a
		}
		a.Total++
		switch t.Status {
		case task.StatusCompleted:
			a.Completed++
		case task.StatusInProgress:
			a.InProgress++
		}
		if t.EstimatedHours != nil {
			a.EstimatedHours += *t.EstimatedHours
			p.TotalEstimatedHours += *t.EstimatedHours
		}
		if t.ActualHours != nil {
			a.ActualHours += *t.ActualHours
			p.TotalActualHours += *t.ActualHours
		}
	}

	// Efficiency only means something when both totals exist.
	if p.TotalEstimatedHours > 0 && p.TotalActualHours > 0 {
		p.EfficiencyRate = round2(p.TotalEstimatedHours / p.TotalActualHours * 100)
	}
	return p
}

func assigneeKey(assignee string) string {
	if assignee == "" {
		return UnassignedKey
	}
	return assignee
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// cacheEntry is one memoized aggregation keyed by name.
type cacheEntry struct {
	value   *Summary
	expires time.Time
}

// cache is the time-bounded aggregation cache. Invalidation clears all
// entries and bumps a generation counter; a put carrying a stale generation
// is discarded, so a summary computed from a snapshot taken before a delete
// can never be installed after that delete's invalidation. A recompute that
// both starts and finishes after the invalidation carries the new generation
// and wins.
type cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	gen     uint64
}

func newCache() *cache {
	return &cache{entries: make(map[string]cacheEntry)}
}

// get returns the fresh entry for key, if any, and the current generation.
func (c *cache) get(key string, now time.Time) (*Summary, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !now.Before(e.expires) {
		return nil, c.gen, false
	}
	return e.value, c.gen, true
}

// put installs the entry unless the cache has been invalidated since gen
// was observed.
func (c *cache) put(key string, v *Summary, expires time.Time, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.entries[key] = cacheEntry{value: v, expires: expires}
	return true
}

// generation returns the current invalidation generation.
func (c *cache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *cache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	c.gen++
}
