package dispatch

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level collectors, registered once per process with the default
// registerer, in the same style the rest of the retrieval pack uses for
// its own promauto wiring (one set of named collectors per process, not
// one per instance).
var (
	completionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "completions_total",
		Help:      "Work items executed to completion.",
	})
	stealsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "steals_total",
		Help:      "Work items taken from another worker's local deque.",
	})
	missedStealsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "missed_steals_total",
		Help:      "Theft attempts abandoned because the foreign lock was contended.",
	})
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dispatch",
		Name:      "queue_depth",
		Help:      "Estimated pending items per queue role.",
	}, []string{"role"})
	assignedWorkersGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dispatch",
		Name:      "assigned_workers",
		Help:      "Workers currently bound to each assignable queue.",
	}, []string{"queue"})
)

// recordCompletion, recordSteal and recordMissedSteal are thin wrappers so
// dispatcher.go never touches the prometheus API directly.
func recordCompletion() { completionsTotal.Inc() }
func recordSteal()      { stealsTotal.Inc() }
func recordMissedSteal() { missedStealsTotal.Inc() }

// UpdateQueueMetrics refreshes the queue-depth and assignment gauges from
// a point-in-time snapshot. Intended to be called periodically, not from
// the dispatch fast path.
func (c *Core) UpdateQueueMetrics() {
	breakdown := c.PendingCount()
	queueDepth.WithLabelValues("high_priority").Set(float64(breakdown.High))
	queueDepth.WithLabelValues("main").Set(float64(breakdown.Main))
	queueDepth.WithLabelValues("local_total").Set(float64(breakdown.Local))
	for i, n := range breakdown.Assignable {
		queueDepth.WithLabelValues("assignable_" + strconv.Itoa(i)).Set(float64(n))
	}
	for i := range c.assignable {
		assignedWorkersGauge.WithLabelValues(strconv.Itoa(i)).Set(float64(c.assignTable.Load(i)))
	}
}

// StartMetricsUpdater launches a goroutine that calls UpdateQueueMetrics
// on a fixed interval until ctx is cancelled.
func (c *Core) StartMetricsUpdater(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.UpdateQueueMetrics()
			}
		}
	}()
}
