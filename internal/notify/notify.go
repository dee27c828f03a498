// Package notify implements the background analytics refresher. It consumes
// task lifecycle events off the bus and pre-warms the summary cache so the
// next statistics request is served hot. The whole path is best-effort:
// it never blocks a mutating request and no client-visible state depends on
// it running at all.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/basket/taskd/internal/bus"
	"github.com/basket/taskd/internal/stats"
)

// Config wires the notifier. OnDispatch is an optional metric hook fired
// once per handled event.
type Config struct {
	Bus        *bus.Bus
	Engine     *stats.Engine
	Logger     *slog.Logger
	OnDispatch func()
}

// Notifier owns one consumer goroutine subscribed to task.* topics.
type Notifier struct {
	bus        *bus.Bus
	engine     *stats.Engine
	logger     *slog.Logger
	onDispatch func()

	cancel context.CancelFunc
	sub    *bus.Subscription
	wg     sync.WaitGroup
}

// New creates a Notifier. Call Start to begin consuming.
func New(cfg Config) *Notifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		bus:        cfg.Bus,
		engine:     cfg.Engine,
		logger:     logger,
		onDispatch: cfg.OnDispatch,
	}
}

// Start subscribes to the bus and launches the consumer goroutine.
func (n *Notifier) Start(ctx context.Context) {
	ctx, n.cancel = context.WithCancel(ctx)
	n.sub = n.bus.Subscribe("task.")
	n.wg.Add(1)
	go n.loop(ctx)
	n.logger.Info("notifier started")
}

// Stop unsubscribes and waits for the consumer to exit.
func (n *Notifier) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.bus.Unsubscribe(n.sub)
	n.wg.Wait()
	n.logger.Info("notifier stopped")
}

func (n *Notifier) loop(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-n.sub.Ch():
			if !ok {
				return
			}
			n.handle(ctx, ev)
		}
	}
}

func (n *Notifier) handle(ctx context.Context, ev bus.Event) {
	te, ok := ev.Payload.(bus.TaskEvent)
	if !ok {
		return
	}
	n.engine.Refresh(ctx)
	if n.onDispatch != nil {
		n.onDispatch()
	}
	n.logger.Debug("notifier: analytics refreshed",
		"topic", ev.Topic,
		"task_id", te.TaskID,
		"trace_id", te.TraceID,
	)
}
