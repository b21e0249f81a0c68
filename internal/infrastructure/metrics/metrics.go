// Package metrics exports the reconciliation engine's counters to
// Prometheus.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
)

const namespace = "ntconsole"

var (
	feedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_events_total",
		Help:      "Change-feed events applied to the entity store, by outcome",
	}, []string{"table", "kind", "outcome"})

	notificationsSuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_suppressed_total",
		Help:      "Notifications withheld because the event echoed a local write",
	}, []string{"entity"})

	rollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "optimistic_rollbacks_total",
		Help:      "Optimistic mutations rolled back after a failed remote write",
	}, []string{"operation"})

	pendingMutations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_mutations",
		Help:      "Suppression entries currently inside their window",
	})

	bulkItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bulk_insert_items_total",
		Help:      "Queued line item inserts attempted, by result",
	}, []string{"result"})

	overdueItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "overdue_line_items",
		Help:      "Line items past their payment deadline at the last check",
	})

	remoteCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "remote_call_duration_seconds",
		Help:      "Duration of calls to the backend data service",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"operation", "result"})
)

// Recorder implements reconcile.Metrics on the package collectors.
type Recorder struct{}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (Recorder) FeedEventApplied(table ticket.Table, kind ticket.ChangeKind, outcome string) {
	feedEventsTotal.WithLabelValues(table.String(), string(kind), outcome).Inc()
}

func (Recorder) NotificationSuppressed(kind ticket.EntityKind) {
	notificationsSuppressedTotal.WithLabelValues(kind.String()).Inc()
}

func (Recorder) MutationRolledBack(operation string) {
	rollbacksTotal.WithLabelValues(operation).Inc()
}

func (Recorder) PendingMutations(n int) {
	pendingMutations.Set(float64(n))
}

func (Recorder) BulkItemAttempted(ok bool) {
	result := "failed"
	if ok {
		result = "succeeded"
	}
	bulkItemsTotal.WithLabelValues(result).Inc()
}

// OverdueItems records how many items were overdue at the last check.
func (Recorder) OverdueItems(n int) {
	overdueItems.Set(float64(n))
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
