package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all taskd metrics instruments.
type Metrics struct {
	RequestDuration  metric.Float64Histogram
	TasksCreated     metric.Int64Counter
	TasksUpdated     metric.Int64Counter
	TasksDeleted     metric.Int64Counter
	DependencyPrunes metric.Int64Counter
	BulkRejected     metric.Int64Counter
	CacheHits        metric.Int64Counter
	CacheMisses      metric.Int64Counter
	NotifyDispatched metric.Int64Counter
	RateLimitRejects metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RequestDuration, err = meter.Float64Histogram("taskd.request.duration",
		metric.WithDescription("API request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksCreated, err = meter.Int64Counter("taskd.tasks.created",
		metric.WithDescription("Tasks created"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksUpdated, err = meter.Int64Counter("taskd.tasks.updated",
		metric.WithDescription("Tasks updated"),
	)
	if err != nil {
		return nil, err
	}

	m.TasksDeleted, err = meter.Int64Counter("taskd.tasks.deleted",
		metric.WithDescription("Tasks deleted"),
	)
	if err != nil {
		return nil, err
	}

	m.DependencyPrunes, err = meter.Int64Counter("taskd.tasks.dependency_prunes",
		metric.WithDescription("Dependency references removed by cascading deletes"),
	)
	if err != nil {
		return nil, err
	}

	m.BulkRejected, err = meter.Int64Counter("taskd.bulk.rejected",
		metric.WithDescription("Bulk create requests rejected for exceeding the batch limit"),
	)
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("taskd.stats.cache_hits",
		metric.WithDescription("Summary cache hits"),
	)
	if err != nil {
		return nil, err
	}

	m.CacheMisses, err = meter.Int64Counter("taskd.stats.cache_misses",
		metric.WithDescription("Summary cache misses"),
	)
	if err != nil {
		return nil, err
	}

	m.NotifyDispatched, err = meter.Int64Counter("taskd.notify.dispatched",
		metric.WithDescription("Background notifications dispatched"),
	)
	if err != nil {
		return nil, err
	}

	m.RateLimitRejects, err = meter.Int64Counter("taskd.ratelimit.rejects",
		metric.WithDescription("Requests rejected by rate limiter"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
