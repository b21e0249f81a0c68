package ticket

import (
	"time"

	"github.com/warehouse-ops/ntconsole/internal/domain/shared/events"
)

const (
	EventTicketCreated   = "ticket.created"
	EventLineItemCreated = "line_item.created"
	EventStatusChanged   = "entity.status_changed"
	EventLineItemOverdue = "line_item.overdue"
)

const currentEventSchemaVersion = 1

type TicketCreatedEvent struct {
	events.BaseEvent
	Number string `json:"number"`
}

func NewTicketCreatedEvent(t *Ticket, occurredAt time.Time) TicketCreatedEvent {
	return TicketCreatedEvent{
		BaseEvent: newBase(t.ID, EventTicketCreated, occurredAt),
		Number:    t.Number,
	}
}

type LineItemCreatedEvent struct {
	events.BaseEvent
	TicketID   string `json:"ticket_id"`
	ItemNumber int    `json:"item_number"`
	Code       string `json:"code"`
	Priority   bool   `json:"priority"`
}

func NewLineItemCreatedEvent(li *LineItem, occurredAt time.Time) LineItemCreatedEvent {
	return LineItemCreatedEvent{
		BaseEvent:  newBase(li.ID, EventLineItemCreated, occurredAt),
		TicketID:   li.TicketID,
		ItemNumber: li.ItemNumber,
		Code:       li.Code,
		Priority:   li.Priority,
	}
}

// StatusChangedEvent is raised for a status transition of a ticket or a
// line item observed on the feed.
type StatusChangedEvent struct {
	events.BaseEvent
	Kind      EntityKind `json:"kind"`
	ParentID  string     `json:"parent_id,omitempty"`
	OldStatus string     `json:"old_status"`
	NewStatus string     `json:"new_status"`
	// Latency is set for line items that reached a settled status.
	Latency *time.Duration `json:"latency,omitempty"`
}

func NewStatusChangedEvent(e Entity, oldStatus, newStatus string, occurredAt time.Time) StatusChangedEvent {
	ev := StatusChangedEvent{
		BaseEvent: newBase(e.EntityID(), EventStatusChanged, occurredAt),
		Kind:      e.EntityKind(),
		ParentID:  e.ParentID(),
		OldStatus: oldStatus,
		NewStatus: newStatus,
	}
	if li, ok := e.(*LineItem); ok {
		if latency, err := li.PaymentLatency(); err == nil {
			ev.Latency = &latency
		}
	}
	return ev
}

type LineItemOverdueEvent struct {
	events.BaseEvent
	TicketID       string    `json:"ticket_id"`
	ItemNumber     int       `json:"item_number"`
	Deadline       time.Time `json:"deadline"`
	OverdueMinutes int       `json:"overdue_minutes"`
}

func NewLineItemOverdueEvent(li *LineItem, deadline time.Time, overdueMinutes int, occurredAt time.Time) LineItemOverdueEvent {
	return LineItemOverdueEvent{
		BaseEvent:      newBase(li.ID, EventLineItemOverdue, occurredAt),
		TicketID:       li.TicketID,
		ItemNumber:     li.ItemNumber,
		Deadline:       deadline,
		OverdueMinutes: overdueMinutes,
	}
}

func newBase(aggregateID, eventType string, occurredAt time.Time) events.BaseEvent {
	return events.BaseEvent{
		AggregateID: aggregateID,
		EventType:   eventType,
		OccurredAt:  occurredAt,
		Version:     currentEventSchemaVersion,
	}
}
