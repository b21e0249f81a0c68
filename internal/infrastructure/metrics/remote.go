package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	vo "github.com/warehouse-ops/ntconsole/internal/domain/ticket/valueobjects"
)

// InstrumentedRemote times every call to the wrapped backend.
type InstrumentedRemote struct {
	next ticket.Remote
}

var _ ticket.Remote = (*InstrumentedRemote)(nil)

func NewInstrumentedRemote(next ticket.Remote) *InstrumentedRemote {
	return &InstrumentedRemote{next: next}
}

func (r *InstrumentedRemote) CreateTicket(ctx context.Context, clientRef string, drafts []ticket.LineItemDraft) (*ticket.Ticket, []*ticket.LineItem, error) {
	start := time.Now()
	t, items, err := r.next.CreateTicket(ctx, clientRef, drafts)
	observe("create_ticket", start, err)
	return t, items, err
}

func (r *InstrumentedRemote) CreateLineItem(ctx context.Context, ticketID string, draft ticket.LineItemDraft) (*ticket.LineItem, error) {
	start := time.Now()
	li, err := r.next.CreateLineItem(ctx, ticketID, draft)
	observe("create_line_item", start, err)
	return li, err
}

func (r *InstrumentedRemote) UpdateLineItemStatus(ctx context.Context, id string, status vo.PaymentStatus, paymentTime *string) error {
	start := time.Now()
	err := r.next.UpdateLineItemStatus(ctx, id, status, paymentTime)
	observe("update_line_item_status", start, err)
	return err
}

func (r *InstrumentedRemote) DeleteLineItem(ctx context.Context, id string) error {
	start := time.Now()
	err := r.next.DeleteLineItem(ctx, id)
	observe("delete_line_item", start, err)
	return err
}

func (r *InstrumentedRemote) DeleteTicket(ctx context.Context, id string) error {
	start := time.Now()
	err := r.next.DeleteTicket(ctx, id)
	observe("delete_ticket", start, err)
	return err
}

func (r *InstrumentedRemote) FetchTicketsPage(ctx context.Context, offset, limit int) ([]*ticket.Ticket, error) {
	start := time.Now()
	page, err := r.next.FetchTicketsPage(ctx, offset, limit)
	observe("fetch_tickets_page", start, err)
	return page, err
}

func (r *InstrumentedRemote) FetchLineItemsPage(ctx context.Context, offset, limit int) ([]*ticket.LineItem, error) {
	start := time.Now()
	page, err := r.next.FetchLineItemsPage(ctx, offset, limit)
	observe("fetch_line_items_page", start, err)
	return page, err
}

func observe(operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	remoteCallDuration.With(prometheus.Labels{"operation": operation, "result": result}).
		Observe(time.Since(start).Seconds())
}
