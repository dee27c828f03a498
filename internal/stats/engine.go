package stats

import (
	"context"
	"time"

	"github.com/basket/taskd/internal/task"
)

// Snapshotter supplies a consistent point-in-time view of all tasks.
// *store.Store implements it.
type Snapshotter interface {
	List(ctx context.Context) []*task.Task
}

// Config wires the engine. Now and TTL default to time.Now and DefaultTTL;
// OnHit/OnMiss are optional metric hooks.
type Config struct {
	Source Snapshotter
	TTL    time.Duration
	Now    func() time.Time
	OnHit  func()
	OnMiss func()
}

// Engine serves summary statistics through a TTL cache and recomputes
// productivity analytics on every call. The cache and the clock are owned
// by the instance; nothing here is process-global.
type Engine struct {
	source Snapshotter
	ttl    time.Duration
	now    func() time.Time
	onHit  func()
	onMiss func()
	cache  *cache
}

// NewEngine creates an Engine over the given snapshot source.
func NewEngine(cfg Config) *Engine {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		source: cfg.Source,
		ttl:    ttl,
		now:    now,
		onHit:  cfg.OnHit,
		onMiss: cfg.OnMiss,
		cache:  newCache(),
	}
}

// GetSummary returns the cached summary while it is fresh; otherwise it
// recomputes from a snapshot and resets the TTL window. Two calls within
// the TTL with no intervening invalidation return the identical object.
func (e *Engine) GetSummary(ctx context.Context) *Summary {
	now := e.now().UTC()
	s, gen, ok := e.cache.get(summaryCacheKey, now)
	if ok {
		if e.onHit != nil {
			e.onHit()
		}
		return s
	}
	if e.onMiss != nil {
		e.onMiss()
	}

	// gen pins the snapshot to the invalidation generation it was taken
	// under; a delete racing this recompute discards the stale put.
	s = ComputeSummary(e.source.List(ctx))
	e.cache.put(summaryCacheKey, s, now.Add(e.ttl), gen)
	return s
}

// Refresh recomputes the summary unconditionally and stores it with a fresh
// TTL. The background notifier and the maintenance scheduler use it to
// pre-warm the cache after mutations.
func (e *Engine) Refresh(ctx context.Context) *Summary {
	gen := e.cache.generation()
	s := ComputeSummary(e.source.List(ctx))
	e.cache.put(summaryCacheKey, s, e.now().UTC().Add(e.ttl), gen)
	return s
}

// GetProductivity recomputes analytics from a snapshot. Never cached.
func (e *Engine) GetProductivity(ctx context.Context) *Productivity {
	return ComputeProductivity(e.source.List(ctx))
}

// Invalidate clears the whole cache. Called by the store on every delete;
// a deletion can change every statistic.
func (e *Engine) Invalidate() {
	e.cache.invalidate()
}
