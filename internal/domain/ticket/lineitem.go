package ticket

import (
	vo "github.com/warehouse-ops/ntconsole/internal/domain/ticket/valueobjects"
)

// LineItem is one material/quantity record on a ticket with its own
// payment state.
type LineItem struct {
	ID          string           `json:"id"`
	TicketID    string           `json:"ticket_id"`
	ItemNumber  int              `json:"item_number"`
	Code        string           `json:"code"`
	Description string           `json:"description"`
	Quantity    float64          `json:"quantity"`
	Batch       *string          `json:"batch"`
	Status      vo.PaymentStatus `json:"status"`
	Priority    bool             `json:"priority"`
	CreatedDate string           `json:"created_date"`
	CreatedTime string           `json:"created_time"`
	PaymentTime *string          `json:"payment_time"`
	// ClientRef is the temporary id the creating console gave the item.
	ClientRef string `json:"client_ref,omitempty"`
}

func (li *LineItem) EntityKind() EntityKind { return KindLineItem }
func (li *LineItem) EntityID() string       { return li.ID }
func (li *LineItem) ParentID() string       { return li.TicketID }

func (li *LineItem) MergeJSON(patch []byte) (Entity, error) {
	merged := li.clone()
	if err := mergeOnto(merged, li.ID, patch); err != nil {
		return nil, err
	}
	merged.Normalize()
	return merged, nil
}

// Normalize enforces that a payment time is only kept while the item is
// settled.
func (li *LineItem) Normalize() {
	if !li.Status.IsSettled() {
		li.PaymentTime = nil
	}
}

// WithID returns a copy of the item carrying a different id.
func (li *LineItem) WithID(id string) *LineItem {
	c := li.clone()
	c.ID = id
	return c
}

// WithTicketID returns a copy of the item attached to a different ticket.
func (li *LineItem) WithTicketID(ticketID string) *LineItem {
	c := li.clone()
	c.TicketID = ticketID
	return c
}

// clone copies the item including pointed-to optional fields, so that a
// JSON merge into the copy cannot write through to the original.
func (li *LineItem) clone() *LineItem {
	c := *li
	if li.Batch != nil {
		b := *li.Batch
		c.Batch = &b
	}
	if li.PaymentTime != nil {
		p := *li.PaymentTime
		c.PaymentTime = &p
	}
	return &c
}

// LineItemDraft is the caller-supplied content of a line item before it
// has an id.
type LineItemDraft struct {
	ItemNumber  int     `json:"item_number" validate:"gte=0"`
	Code        string  `json:"code" validate:"required,max=64"`
	Description string  `json:"description" validate:"max=500"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	Batch       *string `json:"batch,omitempty" validate:"omitempty,max=64"`
	Priority    bool    `json:"priority"`
	// ClientRef correlates the created row with a provisional item.
	ClientRef string `json:"client_ref,omitempty" validate:"omitempty,max=64"`
}

// NewLineItem materializes a draft as an unpaid item created at the given
// business date and time of day.
func NewLineItem(id, ticketID string, itemNumber int, d LineItemDraft, createdDate, createdTime string) *LineItem {
	var batch *string
	if d.Batch != nil {
		b := *d.Batch
		batch = &b
	}
	return &LineItem{
		ID:          id,
		TicketID:    ticketID,
		ItemNumber:  itemNumber,
		Code:        d.Code,
		Description: d.Description,
		Quantity:    d.Quantity,
		Batch:       batch,
		Status:      vo.PaymentAwaiting,
		Priority:    d.Priority,
		CreatedDate: createdDate,
		CreatedTime: createdTime,
		ClientRef:   d.ClientRef,
	}
}
