package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warehouse-ops/ntconsole/internal/domain/shared/events"
	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/entitystore"
	"github.com/warehouse-ops/ntconsole/internal/shared/biztime"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
)

// EchoTracker is the part of the Tracker the Reconciler consults.
type EchoTracker interface {
	IsSuppressed(entityID string) bool
	IsInsertSuppressed(entityID, parentID string) bool
	ClaimProvisional(clientRef string) (tempID string, ok bool)
}

// Reconciler merges change-feed events into the entity store. Every event
// is applied idempotently: replaying one that is already reflected in the
// store changes nothing and notifies nobody.
type Reconciler struct {
	store     *entitystore.Store
	echoes    EchoTracker
	source    PageFetcher
	publisher events.EventPublisher
	pageSize  int
	now       func() time.Time
	metrics   Metrics
	logger    logger.Interface

	// gate lets Hydrate wait for feed events already being applied.
	gate      sync.RWMutex
	mu        sync.Mutex
	hydrating bool
	buffered  []ticket.ChangeEvent
}

func NewReconciler(
	store *entitystore.Store,
	echoes EchoTracker,
	source PageFetcher,
	publisher events.EventPublisher,
	pageSize int,
	log logger.Interface,
) *Reconciler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if pageSize <= 0 {
		pageSize = DefaultFetchPageSize
	}
	return &Reconciler{
		store:     store,
		echoes:    echoes,
		source:    source,
		publisher: publisher,
		pageSize:  pageSize,
		now:       biztime.NowUTC,
		metrics:   nopMetrics{},
		logger:    log.With("component", "reconciler"),
	}
}

// SetClock replaces the time source used to stamp notifications.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

func (r *Reconciler) SetMetrics(m Metrics) {
	r.metrics = m
}

// Hydrate loads the full backend snapshot into the store without raising
// notifications. Feed events delivered while the snapshot is read are held
// back and applied on top of it afterwards, so a change the snapshot
// missed is not lost and a deleted row is not brought back.
func (r *Reconciler) Hydrate(ctx context.Context) error {
	r.gate.Lock()
	r.mu.Lock()
	r.hydrating = true
	r.mu.Unlock()
	r.gate.Unlock()

	tickets, items, err := FetchAll(ctx, r.source, r.pageSize)
	if err == nil {
		all := make([]ticket.Entity, 0, len(tickets)+len(items))
		for _, t := range tickets {
			all = append(all, t)
		}
		for _, li := range items {
			all = append(all, li)
		}
		r.store.UpsertAll(all...)
	}
	replayed := r.drain(ctx)

	if err != nil {
		return fmt.Errorf("hydrate: %w", err)
	}
	r.logger.Infow("store hydrated", "tickets", len(tickets), "line_items", len(items), "replayed_events", replayed)
	return nil
}

// HandleFeedEvent is the change-feed handler. Events that cannot be
// applied are logged.
func (r *Reconciler) HandleFeedEvent(ctx context.Context, ev ticket.ChangeEvent) {
	r.gate.RLock()
	defer r.gate.RUnlock()

	r.mu.Lock()
	if r.hydrating {
		r.buffered = append(r.buffered, ev)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	r.handle(ctx, ev)
}

// drain applies the events held back during hydration in arrival order
// until none are left, then lets new events through directly.
func (r *Reconciler) drain(ctx context.Context) int {
	n := 0
	for {
		r.mu.Lock()
		batch := r.buffered
		r.buffered = nil
		if len(batch) == 0 {
			r.hydrating = false
			r.mu.Unlock()
			return n
		}
		r.mu.Unlock()

		for _, ev := range batch {
			r.handle(ctx, ev)
		}
		n += len(batch)
	}
}

func (r *Reconciler) handle(ctx context.Context, ev ticket.ChangeEvent) {
	if err := r.Apply(ctx, ev); err != nil {
		r.logger.Errorw("failed to apply change event",
			"table", ev.Table(),
			"kind", ev.Kind(),
			"error", err,
		)
	}
}

// Apply merges one event into the store.
func (r *Reconciler) Apply(_ context.Context, ev ticket.ChangeEvent) error {
	var (
		outcome string
		err     error
	)
	switch e := ev.(type) {
	case ticket.Insert:
		outcome, err = r.applyInsert(e.In, e.New)
	case ticket.Update:
		outcome, err = r.applyUpdate(e)
	case ticket.Delete:
		outcome, err = r.applyDelete(e)
	default:
		err = fmt.Errorf("unsupported change event %T", ev)
	}
	if err != nil {
		outcome = OutcomeFailed
	}
	r.metrics.FeedEventApplied(ev.Table(), ev.Kind(), outcome)
	return err
}

func (r *Reconciler) applyInsert(table ticket.Table, row ticket.Row) (string, error) {
	kind := table.Kind()
	entity, err := ticket.DecodeEntity(kind, row)
	if err != nil {
		return "", err
	}
	entityID, parentID := entity.EntityID(), entity.ParentID()

	if _, exists := r.store.Get(kind, entityID); exists {
		r.echoes.IsSuppressed(entityID)
		return OutcomeDuplicate, nil
	}

	// The echo of a local create that is still in flight takes the place
	// of its provisional entity.
	if tempID, claimed := r.echoes.ClaimProvisional(clientRefOf(entity)); claimed {
		if err := r.replaceProvisional(kind, tempID, entity); err != nil {
			return "", err
		}
		r.metrics.NotificationSuppressed(kind)
		return OutcomeClaimed, nil
	}

	if li, ok := entity.(*ticket.LineItem); ok {
		r.warnIfOrphan(li)
	}
	if !r.store.Insert(entity) {
		r.echoes.IsSuppressed(entityID)
		return OutcomeDuplicate, nil
	}

	if r.echoes.IsInsertSuppressed(entityID, parentID) {
		r.metrics.NotificationSuppressed(kind)
		return OutcomeApplied, nil
	}
	r.notifyCreated(entity)
	return OutcomeApplied, nil
}

// replaceProvisional swaps a provisional entity for its echo. A provisional
// ticket hands its line items over to the authoritative one.
func (r *Reconciler) replaceProvisional(kind ticket.EntityKind, tempID string, entity ticket.Entity) error {
	if kind != ticket.KindTicket {
		return r.store.Swap(kind, tempID, entity)
	}
	adopted, err := r.store.Adopt(tempID, entity)
	if err != nil {
		return err
	}
	if !adopted {
		// The create was rolled back locally after the backend committed it.
		r.store.Insert(entity)
	}
	return nil
}

func (r *Reconciler) applyUpdate(e ticket.Update) (string, error) {
	kind := e.In.Kind()
	hdr, err := e.New.Header()
	if err != nil {
		return "", err
	}

	before, after, existed, err := r.store.Merge(kind, hdr.ID, e.New)
	if err != nil {
		return "", err
	}
	if !existed {
		// A missed insert heals here.
		if _, err := r.applyInsert(e.In, e.New); err != nil {
			return "", err
		}
		return OutcomeUpgraded, nil
	}

	suppressed := r.echoes.IsSuppressed(hdr.ID)

	oldStatus := statusOf(before)
	if e.Old != nil {
		if oldHdr, err := e.Old.Header(); err == nil && oldHdr.Status != "" {
			oldStatus = oldHdr.Status
		}
	}
	newStatus := statusOf(after)

	// Both the publisher and the store must agree that the status moved;
	// a replayed or already-applied update leaves the store status as is.
	if oldStatus == newStatus || statusOf(before) == newStatus {
		return OutcomeApplied, nil
	}
	if suppressed {
		r.metrics.NotificationSuppressed(kind)
		return OutcomeApplied, nil
	}
	r.publish(ticket.NewStatusChangedEvent(after, statusOf(before), newStatus, r.now()))
	return OutcomeApplied, nil
}

func (r *Reconciler) applyDelete(e ticket.Delete) (string, error) {
	kind := e.In.Kind()
	hdr, err := e.Old.Header()
	if err != nil {
		return "", err
	}
	r.echoes.IsSuppressed(hdr.ID)

	if kind == ticket.KindTicket {
		_, children, removed := r.store.RemoveCascade(hdr.ID)
		if !removed && len(children) == 0 {
			return OutcomeDuplicate, nil
		}
		return OutcomeApplied, nil
	}
	if _, removed := r.store.Remove(kind, hdr.ID); !removed {
		return OutcomeDuplicate, nil
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) warnIfOrphan(li *ticket.LineItem) {
	if _, ok := r.store.Ticket(li.TicketID); !ok {
		r.logger.Warnw("line item references a ticket not in the store",
			"line_item_id", li.ID,
			"ticket_id", li.TicketID,
		)
	}
}

func (r *Reconciler) notifyCreated(entity ticket.Entity) {
	switch v := entity.(type) {
	case *ticket.Ticket:
		r.publish(ticket.NewTicketCreatedEvent(v, r.now()))
	case *ticket.LineItem:
		r.publish(ticket.NewLineItemCreatedEvent(v, r.now()))
	}
}

func (r *Reconciler) publish(ev events.DomainEvent) {
	if err := r.publisher.Publish(ev); err != nil {
		r.logger.Warnw("failed to publish notification",
			"event_type", ev.GetEventType(),
			"aggregate_id", ev.GetAggregateID(),
			"error", err,
		)
	}
}

func clientRefOf(e ticket.Entity) string {
	switch v := e.(type) {
	case *ticket.Ticket:
		return v.ClientRef
	case *ticket.LineItem:
		return v.ClientRef
	default:
		return ""
	}
}

func statusOf(e ticket.Entity) string {
	switch v := e.(type) {
	case *ticket.Ticket:
		return v.Status.String()
	case *ticket.LineItem:
		return v.Status.String()
	default:
		return ""
	}
}
