package reconcile

import "github.com/warehouse-ops/ntconsole/internal/domain/ticket"

// Outcomes recorded for applied feed events.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeUpgraded  = "upgraded"
	OutcomeClaimed   = "claimed"
	OutcomeFailed    = "failed"
)

// Metrics receives the engine's counters. The Prometheus implementation
// lives in infrastructure/metrics.
type Metrics interface {
	FeedEventApplied(table ticket.Table, kind ticket.ChangeKind, outcome string)
	NotificationSuppressed(kind ticket.EntityKind)
	MutationRolledBack(operation string)
	PendingMutations(n int)
	BulkItemAttempted(ok bool)
}

type nopMetrics struct{}

func (nopMetrics) FeedEventApplied(ticket.Table, ticket.ChangeKind, string) {}
func (nopMetrics) NotificationSuppressed(ticket.EntityKind)                 {}
func (nopMetrics) MutationRolledBack(string)                                {}
func (nopMetrics) PendingMutations(int)                                     {}
func (nopMetrics) BulkItemAttempted(bool)                                   {}
