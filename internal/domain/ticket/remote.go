package ticket

import (
	"context"

	vo "github.com/warehouse-ops/ntconsole/internal/domain/ticket/valueobjects"
)

// Remote is the shared backend data service. Every write it commits is
// later echoed on the change feed.
type Remote interface {
	// CreateTicket creates a ticket with its initial line items. clientRef
	// is stored on the ticket row and carried by its feed echo; each draft's
	// ClientRef is stored on its item the same way.
	CreateTicket(ctx context.Context, clientRef string, drafts []LineItemDraft) (*Ticket, []*LineItem, error)
	// CreateLineItem adds one item. A zero ItemNumber asks the backend to
	// assign the next free number within the ticket.
	CreateLineItem(ctx context.Context, ticketID string, draft LineItemDraft) (*LineItem, error)
	UpdateLineItemStatus(ctx context.Context, id string, status vo.PaymentStatus, paymentTime *string) error
	DeleteLineItem(ctx context.Context, id string) error
	// DeleteTicket removes the ticket and its line items.
	DeleteTicket(ctx context.Context, id string) error

	FetchTicketsPage(ctx context.Context, offset, limit int) ([]*Ticket, error)
	FetchLineItemsPage(ctx context.Context, offset, limit int) ([]*LineItem, error)
}
