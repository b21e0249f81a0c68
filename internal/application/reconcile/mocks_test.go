package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warehouse-ops/ntconsole/internal/domain/shared/events"
	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	vo "github.com/warehouse-ops/ntconsole/internal/domain/ticket/valueobjects"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/entitystore"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
)

var testNow = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

type mockRemote struct {
	CreateTicketFunc         func(ctx context.Context, clientRef string, drafts []ticket.LineItemDraft) (*ticket.Ticket, []*ticket.LineItem, error)
	CreateLineItemFunc       func(ctx context.Context, ticketID string, draft ticket.LineItemDraft) (*ticket.LineItem, error)
	UpdateLineItemStatusFunc func(ctx context.Context, id string, status vo.PaymentStatus, paymentTime *string) error
	DeleteLineItemFunc       func(ctx context.Context, id string) error
	DeleteTicketFunc         func(ctx context.Context, id string) error
	FetchTicketsPageFunc     func(ctx context.Context, offset, limit int) ([]*ticket.Ticket, error)
	FetchLineItemsPageFunc   func(ctx context.Context, offset, limit int) ([]*ticket.LineItem, error)
}

func (m *mockRemote) CreateTicket(ctx context.Context, clientRef string, drafts []ticket.LineItemDraft) (*ticket.Ticket, []*ticket.LineItem, error) {
	if m.CreateTicketFunc != nil {
		return m.CreateTicketFunc(ctx, clientRef, drafts)
	}
	return nil, nil, fmt.Errorf("CreateTicket not expected")
}

func (m *mockRemote) CreateLineItem(ctx context.Context, ticketID string, draft ticket.LineItemDraft) (*ticket.LineItem, error) {
	if m.CreateLineItemFunc != nil {
		return m.CreateLineItemFunc(ctx, ticketID, draft)
	}
	return nil, fmt.Errorf("CreateLineItem not expected")
}

func (m *mockRemote) UpdateLineItemStatus(ctx context.Context, id string, status vo.PaymentStatus, paymentTime *string) error {
	if m.UpdateLineItemStatusFunc != nil {
		return m.UpdateLineItemStatusFunc(ctx, id, status, paymentTime)
	}
	return nil
}

func (m *mockRemote) DeleteLineItem(ctx context.Context, id string) error {
	if m.DeleteLineItemFunc != nil {
		return m.DeleteLineItemFunc(ctx, id)
	}
	return nil
}

func (m *mockRemote) DeleteTicket(ctx context.Context, id string) error {
	if m.DeleteTicketFunc != nil {
		return m.DeleteTicketFunc(ctx, id)
	}
	return nil
}

func (m *mockRemote) FetchTicketsPage(ctx context.Context, offset, limit int) ([]*ticket.Ticket, error) {
	if m.FetchTicketsPageFunc != nil {
		return m.FetchTicketsPageFunc(ctx, offset, limit)
	}
	return nil, nil
}

func (m *mockRemote) FetchLineItemsPage(ctx context.Context, offset, limit int) ([]*ticket.LineItem, error) {
	if m.FetchLineItemsPageFunc != nil {
		return m.FetchLineItemsPageFunc(ctx, offset, limit)
	}
	return nil, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (p *recordingPublisher) Publish(ev events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) PublishAll(evs []events.DomainEvent) error {
	for _, ev := range evs {
		_ = p.Publish(ev)
	}
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.GetEventType())
	}
	return out
}

// sequentialIDs mints tmp_1, tmp_2, ... so tests can name provisional ids.
func sequentialIDs() func() (string, error) {
	var mu sync.Mutex
	n := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("tmp_%d", n), nil
	}
}

type harness struct {
	store      *entitystore.Store
	remote     *mockRemote
	tracker    *Tracker
	reconciler *Reconciler
	published  *recordingPublisher
	now        time.Time
}

func newHarness() *harness {
	h := &harness{
		store:     entitystore.New(),
		remote:    &mockRemote{},
		published: &recordingPublisher{},
		now:       testNow,
	}
	clock := func() time.Time { return h.now }

	h.tracker = NewTracker(h.store, h.remote, DefaultSuppressionTTL, logger.NewNopLogger())
	h.tracker.SetClock(clock)
	h.tracker.newTempID = sequentialIDs()

	h.reconciler = NewReconciler(h.store, h.tracker, h.remote, h.published, 2, logger.NewNopLogger())
	h.reconciler.SetClock(clock)
	return h
}

func openTicket(id string) *ticket.Ticket {
	return &ticket.Ticket{ID: id, Number: "NT-20240101-0001", CreatedDate: "2024-01-01", CreatedTime: "10:00:00", Status: vo.StatusOpen}
}

func awaitingItem(id, ticketID string, n int) *ticket.LineItem {
	return &ticket.LineItem{
		ID:          id,
		TicketID:    ticketID,
		ItemNumber:  n,
		Code:        "MAT",
		Quantity:    1,
		Status:      vo.PaymentAwaiting,
		CreatedDate: "2024-01-01",
		CreatedTime: "10:00:00",
	}
}

func mustRow(e ticket.Entity) ticket.Row {
	row, err := ticket.RowOf(e)
	if err != nil {
		panic(err)
	}
	return row
}
