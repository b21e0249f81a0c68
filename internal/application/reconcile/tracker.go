// Package reconcile keeps the console's entity store coherent with the
// shared backend. Local writes are applied optimistically by the Tracker,
// feed events are merged by the Reconciler and batched item inserts are
// run one at a time by the Sequencer.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	vo "github.com/warehouse-ops/ntconsole/internal/domain/ticket/valueobjects"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/entitystore"
	"github.com/warehouse-ops/ntconsole/internal/shared/biztime"
	"github.com/warehouse-ops/ntconsole/internal/shared/errors"
	"github.com/warehouse-ops/ntconsole/internal/shared/id"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
	"github.com/warehouse-ops/ntconsole/internal/shared/utils"
)

// DefaultSuppressionTTL bounds how long the echo of a local write is
// recognized as already known.
const DefaultSuppressionTTL = 5 * time.Second

// PendingMutation is the suppression entry of one in-flight local write.
// CorrelationKey is either the id of the written entity or, while a line
// item is being added, the id of its ticket.
type PendingMutation struct {
	CorrelationKey string            `json:"correlation_key"`
	EntityKind     ticket.EntityKind `json:"entity_kind"`
	TempID         string            `json:"temp_id,omitempty"`
	IssuedAt       time.Time         `json:"issued_at"`
	TTL            time.Duration     `json:"ttl"`
}

// Expired reports whether the entry's window has elapsed at now.
func (p PendingMutation) Expired(now time.Time) bool {
	return !now.Before(p.IssuedAt.Add(p.TTL))
}

// Tracker issues local-first writes against the entity store and the
// remote backend and remembers them long enough to recognize their echo.
type Tracker struct {
	store     *entitystore.Store
	remote    ticket.Remote
	ttl       time.Duration
	now       func() time.Time
	newTempID func() (string, error)
	metrics   Metrics
	logger    logger.Interface

	mu      sync.Mutex
	pending map[string]PendingMutation
	// provisional maps the client reference sent with a create to the
	// temporary id of the provisional entity awaiting its echo.
	provisional map[string]string
}

func NewTracker(store *entitystore.Store, remote ticket.Remote, ttl time.Duration, log logger.Interface) *Tracker {
	if ttl <= 0 {
		ttl = DefaultSuppressionTTL
	}
	return &Tracker{
		store:       store,
		remote:      remote,
		ttl:         ttl,
		now:         biztime.NowUTC,
		newTempID:   id.NewTemporaryID,
		metrics:     nopMetrics{},
		logger:      log.With("component", "tracker"),
		pending:     make(map[string]PendingMutation),
		provisional: make(map[string]string),
	}
}

// SetClock replaces the tracker's time source.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

func (t *Tracker) SetMetrics(m Metrics) {
	t.metrics = m
}

// CreateTicket inserts a provisional ticket with its items, creates it
// remotely and replaces the provisional entities with the backend's. The
// temporary ids travel to the backend as client references, so an echo
// that arrives before the call returns is claimed instead of duplicated.
func (t *Tracker) CreateTicket(ctx context.Context, drafts []ticket.LineItemDraft) (*ticket.Ticket, []*ticket.LineItem, error) {
	if err := utils.ValidateEach(drafts); err != nil {
		return nil, nil, err
	}

	tempID, err := t.newTempID()
	if err != nil {
		return nil, nil, errors.NewInternalError("failed to generate temporary id", err.Error())
	}

	now := t.clock()
	date, tod := biztime.FormatDate(now), biztime.FormatTimeOfDay(now)
	provisional := []ticket.Entity{&ticket.Ticket{
		ID:          tempID,
		CreatedDate: date,
		CreatedTime: tod,
		Status:      vo.StatusOpen,
	}}
	numbers := assignItemNumbers(drafts)
	sent := make([]ticket.LineItemDraft, len(drafts))
	refs := make([]string, 0, len(drafts)+1)
	refs = append(refs, tempID)
	for i, d := range drafts {
		itemID, err := t.newTempID()
		if err != nil {
			return nil, nil, errors.NewInternalError("failed to generate temporary id", err.Error())
		}
		d.ClientRef = itemID
		sent[i] = d
		refs = append(refs, itemID)
		provisional = append(provisional, ticket.NewLineItem(itemID, tempID, numbers[i], d, date, tod))
	}

	t.mu.Lock()
	for _, ref := range refs {
		t.provisional[ref] = ref
	}
	t.registerLocked(tempID, ticket.KindTicket, tempID, t.now())
	t.store.UpsertAll(provisional...)
	t.mu.Unlock()

	tk, items, err := t.remote.CreateTicket(ctx, tempID, sent)
	claimed := t.settle(refs)
	if err != nil {
		t.store.RemoveCascade(tempID)
		for _, itemID := range refs[1:] {
			t.store.Remove(ticket.KindLineItem, itemID)
		}
		return nil, nil, t.rolledBack("create ticket", err, "temp_id", tempID)
	}

	children := make([]ticket.Entity, 0, len(items))
	if !claimed[tempID] {
		t.register(tk.ID, ticket.KindTicket, tempID)
	}
	for _, li := range items {
		if !claimed[li.ClientRef] {
			t.register(li.ID, ticket.KindLineItem, li.ClientRef)
		}
		children = append(children, li)
	}
	if err := t.store.SwapTree(tempID, refs[1:], tk, children...); err != nil {
		// The backend answered with items of another ticket. Keep what it
		// returned and let the feed settle the rest.
		t.logger.Errorw("failed to swap provisional ticket", "temp_id", tempID, "ticket_id", tk.ID, "error", err)
		t.store.RemoveCascade(tempID)
		for _, itemID := range refs[1:] {
			t.store.Remove(ticket.KindLineItem, itemID)
		}
		t.store.UpsertAll(append([]ticket.Entity{tk}, children...)...)
	}

	t.logger.Infow("ticket created", "ticket_id", tk.ID, "number", tk.Number, "items", len(items))
	return tk, items, nil
}

// CreateLineItem adds one item to a confirmed ticket. The temporary id is
// sent as the item's client reference so that an early feed echo can be
// matched to the provisional item through ClaimProvisional.
func (t *Tracker) CreateLineItem(ctx context.Context, ticketID string, draft ticket.LineItemDraft) (*ticket.LineItem, error) {
	if err := utils.ValidateID(ticketID); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(draft); err != nil {
		return nil, err
	}
	if id.IsTemporary(ticketID) {
		return nil, errors.NewConflictError("ticket is not confirmed yet", ticketID)
	}
	if _, ok := t.store.Ticket(ticketID); !ok {
		return nil, errors.NewNotFoundError("ticket not found", ticketID)
	}

	tempID, err := t.newTempID()
	if err != nil {
		return nil, errors.NewInternalError("failed to generate temporary id", err.Error())
	}
	draft.ClientRef = tempID

	// Numbering and the provisional insert happen under one lock so two
	// concurrent creates on a ticket cannot pick the same number.
	t.mu.Lock()
	if draft.ItemNumber == 0 {
		draft.ItemNumber = t.store.NextItemNumber(ticketID)
	}
	now := t.now()
	t.provisional[tempID] = tempID
	t.registerLocked(ticketID, ticket.KindLineItem, tempID, now)
	t.store.Upsert(ticket.NewLineItem(tempID, ticketID, draft.ItemNumber, draft, biztime.FormatDate(now), biztime.FormatTimeOfDay(now)))
	t.mu.Unlock()

	li, err := t.remote.CreateLineItem(ctx, ticketID, draft)
	claimed := t.settle([]string{tempID})

	if err != nil {
		t.store.Remove(ticket.KindLineItem, tempID)
		return nil, t.rolledBack("create line item", err, "ticket_id", ticketID, "item_number", draft.ItemNumber)
	}

	if !claimed[tempID] {
		t.register(li.ID, ticket.KindLineItem, tempID)
	}
	if err := t.store.Swap(ticket.KindLineItem, tempID, li); err != nil {
		return nil, errors.NewInternalError("failed to replace provisional line item", err.Error())
	}

	t.logger.Infow("line item created", "line_item_id", li.ID, "ticket_id", ticketID, "item_number", li.ItemNumber)
	return li, nil
}

// UpdateLineItemStatus applies a status change locally, then remotely.
// Settling stamps the payment time when none is recorded; returning to
// awaiting payment clears it.
func (t *Tracker) UpdateLineItemStatus(ctx context.Context, itemID string, status vo.PaymentStatus) (*ticket.LineItem, error) {
	if !status.IsValid() {
		return nil, errors.NewValidationError("invalid payment status", string(status))
	}
	current, ok := t.store.LineItem(itemID)
	if !ok {
		return nil, errors.NewNotFoundError("line item not found", itemID)
	}
	if id.IsTemporary(itemID) {
		return nil, errors.NewConflictError("line item is not confirmed yet", itemID)
	}

	var paymentTime *string
	if status.IsSettled() {
		if current.PaymentTime != nil {
			paymentTime = current.PaymentTime
		} else {
			stamp := biztime.FormatTimeOfDay(t.clock())
			paymentTime = &stamp
		}
	}
	patch, err := json.Marshal(struct {
		Status      vo.PaymentStatus `json:"status"`
		PaymentTime *string          `json:"payment_time"`
	}{status, paymentTime})
	if err != nil {
		return nil, errors.NewInternalError("failed to encode status patch", err.Error())
	}

	t.register(itemID, ticket.KindLineItem, "")
	snap, after, existed, err := t.store.MergeCapture(ticket.KindLineItem, itemID, patch)
	if err != nil {
		return nil, errors.NewInternalError("failed to apply status locally", err.Error())
	}
	if !existed {
		return nil, errors.NewNotFoundError("line item not found", itemID)
	}

	if err := t.remote.UpdateLineItemStatus(ctx, itemID, status, paymentTime); err != nil {
		t.store.Restore(snap)
		return nil, t.rolledBack("update line item status", err, "line_item_id", itemID, "status", status)
	}

	t.logger.Infow("line item status changed", "line_item_id", itemID, "status", status)
	return after.(*ticket.LineItem), nil
}

// DeleteLineItem removes an item locally, then remotely.
func (t *Tracker) DeleteLineItem(ctx context.Context, itemID string) error {
	return t.delete(ctx, ticket.KindLineItem, itemID)
}

// DeleteTicket removes a ticket and its items locally, then remotely. A
// failed remote delete restores the ticket together with every item.
func (t *Tracker) DeleteTicket(ctx context.Context, ticketID string) error {
	return t.delete(ctx, ticket.KindTicket, ticketID)
}

func (t *Tracker) delete(ctx context.Context, kind ticket.EntityKind, entityID string) error {
	if _, ok := t.store.Get(kind, entityID); !ok {
		return errors.NewNotFoundError(fmt.Sprintf("%s not found", kind), entityID)
	}
	if id.IsTemporary(entityID) {
		return errors.NewConflictError(fmt.Sprintf("%s is not confirmed yet", kind), entityID)
	}

	t.register(entityID, kind, "")

	// The snapshot is what the removal itself took out of the store.
	snap := entitystore.Snapshot{Kind: kind, ID: entityID}
	var err error
	if kind == ticket.KindTicket {
		snap.Entity, snap.Children, _ = t.store.RemoveCascade(entityID)
		err = t.remote.DeleteTicket(ctx, entityID)
	} else {
		snap.Entity, _ = t.store.Remove(kind, entityID)
		err = t.remote.DeleteLineItem(ctx, entityID)
	}
	if err != nil {
		t.store.Restore(snap)
		return t.rolledBack("delete "+string(kind), err, "id", entityID)
	}

	t.logger.Infow("entity deleted", "kind", kind, "id", entityID)
	return nil
}

// IsSuppressed reports whether a notification about the entity belongs to
// a local write still inside its suppression window. A match consumes the
// entry. Only the entity's own id is consulted, so a ticket receiving new
// items never hides changes to its other items.
func (t *Tracker) IsSuppressed(entityID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(t.now())
	return t.consumeLocked(entityID)
}

// IsInsertSuppressed is IsSuppressed for a newly delivered entity. An
// inserted line item is also suppressed while its ticket is receiving
// local items; that parent match is not consumed, since one ticket may be
// receiving several items.
func (t *Tracker) IsInsertSuppressed(entityID, parentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(t.now())
	if t.consumeLocked(entityID) {
		return true
	}
	if parentID != "" {
		if p, ok := t.pending[parentID]; ok && p.EntityKind == ticket.KindLineItem {
			return true
		}
	}
	return false
}

// ClaimProvisional hands out the temporary id of the provisional entity
// created with clientRef, if its create is still in flight. The claim is
// exclusive: a second call for the same reference reports nothing.
func (t *Tracker) ClaimProvisional(clientRef string) (string, bool) {
	if clientRef == "" {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	tempID, ok := t.provisional[clientRef]
	if ok {
		delete(t.provisional, clientRef)
	}
	return tempID, ok
}

// Pending returns the live suppression entries ordered by issue time.
func (t *Tracker) Pending() []PendingMutation {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(t.now())
	out := make([]PendingMutation, 0, len(t.pending))
	for _, p := range t.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].CorrelationKey < out[j].CorrelationKey
		}
		return out[i].IssuedAt.Before(out[j].IssuedAt)
	})
	return out
}

// settle retires the client references of a finished create and reports
// which of them were claimed by an early echo meanwhile.
func (t *Tracker) settle(refs []string) map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	claimed := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if _, open := t.provisional[ref]; open {
			delete(t.provisional, ref)
			continue
		}
		claimed[ref] = true
	}
	return claimed
}

func (t *Tracker) consumeLocked(key string) bool {
	if _, ok := t.pending[key]; !ok {
		return false
	}
	delete(t.pending, key)
	t.metrics.PendingMutations(len(t.pending))
	return true
}

func (t *Tracker) register(key string, kind ticket.EntityKind, tempID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.registerLocked(key, kind, tempID, t.now())
}

func (t *Tracker) registerLocked(key string, kind ticket.EntityKind, tempID string, now time.Time) {
	t.pending[key] = PendingMutation{
		CorrelationKey: key,
		EntityKind:     kind,
		TempID:         tempID,
		IssuedAt:       now,
		TTL:            t.ttl,
	}
	t.metrics.PendingMutations(len(t.pending))
}

func (t *Tracker) pruneLocked(now time.Time) {
	removed := false
	for key, p := range t.pending {
		if p.Expired(now) {
			delete(t.pending, key)
			removed = true
		}
	}
	if removed {
		t.metrics.PendingMutations(len(t.pending))
	}
}

func (t *Tracker) clock() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now()
}

func (t *Tracker) rolledBack(operation string, cause error, keysAndValues ...interface{}) error {
	t.metrics.MutationRolledBack(operation)
	t.logger.Warnw("remote write failed, local change rolled back",
		append([]interface{}{"operation", operation, "error", cause}, keysAndValues...)...)
	return errors.NewRemoteWriteFailedError(operation, cause)
}

// assignItemNumbers keeps explicit numbers and gives the remaining drafts
// the next free numbers in order.
func assignItemNumbers(drafts []ticket.LineItemDraft) []int {
	used := make(map[int]bool, len(drafts))
	for _, d := range drafts {
		if d.ItemNumber > 0 {
			used[d.ItemNumber] = true
		}
	}
	numbers := make([]int, len(drafts))
	next := 1
	for i, d := range drafts {
		if d.ItemNumber > 0 {
			numbers[i] = d.ItemNumber
			continue
		}
		for used[next] {
			next++
		}
		numbers[i] = next
		used[next] = true
	}
	return numbers
}
