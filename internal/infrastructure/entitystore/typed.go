package entitystore

import (
	"sort"

	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
)

func (s *Store) Ticket(id string) (*ticket.Ticket, bool) {
	e, ok := s.Get(ticket.KindTicket, id)
	if !ok {
		return nil, false
	}
	t, ok := e.(*ticket.Ticket)
	return t, ok
}

func (s *Store) LineItem(id string) (*ticket.LineItem, bool) {
	e, ok := s.Get(ticket.KindLineItem, id)
	if !ok {
		return nil, false
	}
	li, ok := e.(*ticket.LineItem)
	return li, ok
}

// Tickets returns every ticket ordered by number.
func (s *Store) Tickets() []*ticket.Ticket {
	all := s.List(ticket.KindTicket)
	out := make([]*ticket.Ticket, 0, len(all))
	for _, e := range all {
		if t, ok := e.(*ticket.Ticket); ok {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// LineItems returns the items of one ticket ordered by item number.
func (s *Store) LineItems(ticketID string) []*ticket.LineItem {
	return sortedItems(s.ListByParent(ticket.KindLineItem, ticketID))
}

// AllLineItems returns every line item ordered by ticket and item number.
func (s *Store) AllLineItems() []*ticket.LineItem {
	return sortedItems(s.List(ticket.KindLineItem))
}

// NextItemNumber returns one more than the highest item number currently
// held for the ticket.
func (s *Store) NextItemNumber(ticketID string) int {
	next := 1
	for _, li := range s.LineItems(ticketID) {
		if li.ItemNumber >= next {
			next = li.ItemNumber + 1
		}
	}
	return next
}

func sortedItems(es []ticket.Entity) []*ticket.LineItem {
	out := make([]*ticket.LineItem, 0, len(es))
	for _, e := range es {
		if li, ok := e.(*ticket.LineItem); ok {
			out = append(out, li)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TicketID != out[j].TicketID {
			return out[i].TicketID < out[j].TicketID
		}
		return out[i].ItemNumber < out[j].ItemNumber
	})
	return out
}
