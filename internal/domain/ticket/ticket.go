package ticket

import (
	vo "github.com/warehouse-ops/ntconsole/internal/domain/ticket/valueobjects"
)

// Ticket is a work order ("NT") grouping line items.
type Ticket struct {
	ID          string          `json:"id"`
	Number      string          `json:"number"`
	CreatedDate string          `json:"created_date"`
	CreatedTime string          `json:"created_time"`
	Status      vo.TicketStatus `json:"status"`
	// ClientRef is the temporary id the creating console gave the ticket.
	ClientRef string `json:"client_ref,omitempty"`
}

func (t *Ticket) EntityKind() EntityKind { return KindTicket }
func (t *Ticket) EntityID() string       { return t.ID }
func (t *Ticket) ParentID() string       { return "" }

func (t *Ticket) MergeJSON(patch []byte) (Entity, error) {
	merged := *t
	if err := mergeOnto(&merged, t.ID, patch); err != nil {
		return nil, err
	}
	return &merged, nil
}

// WithID returns a copy of the ticket carrying a different id.
func (t *Ticket) WithID(id string) *Ticket {
	c := *t
	c.ID = id
	return &c
}
