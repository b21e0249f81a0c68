package http

import (
	"github.com/warehouse-ops/ntconsole/internal/domain/shared/events"
	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
)

// registerNotificationLoggers makes every console notification visible in
// the log. The UI learns about changes by polling the API.
func registerNotificationLoggers(dispatcher events.EventSubscriber, log logger.Interface) error {
	log = log.With("component", "notifications")

	handlers := map[string]func(events.DomainEvent) error{
		ticket.EventTicketCreated: func(e events.DomainEvent) error {
			ev, ok := e.(ticket.TicketCreatedEvent)
			if !ok {
				return nil
			}
			log.Infow("ticket created", "ticket_id", ev.AggregateID, "number", ev.Number)
			return nil
		},
		ticket.EventLineItemCreated: func(e events.DomainEvent) error {
			ev, ok := e.(ticket.LineItemCreatedEvent)
			if !ok {
				return nil
			}
			log.Infow("line item created",
				"line_item_id", ev.AggregateID,
				"ticket_id", ev.TicketID,
				"item_number", ev.ItemNumber,
				"code", ev.Code,
				"priority", ev.Priority,
			)
			return nil
		},
		ticket.EventStatusChanged: func(e events.DomainEvent) error {
			ev, ok := e.(ticket.StatusChangedEvent)
			if !ok {
				return nil
			}
			args := []interface{}{
				"kind", ev.Kind,
				"id", ev.AggregateID,
				"old_status", ev.OldStatus,
				"new_status", ev.NewStatus,
			}
			if ev.Latency != nil {
				args = append(args, "payment_latency", *ev.Latency)
			}
			log.Infow("status changed", args...)
			return nil
		},
		ticket.EventLineItemOverdue: func(e events.DomainEvent) error {
			ev, ok := e.(ticket.LineItemOverdueEvent)
			if !ok {
				return nil
			}
			log.Warnw("line item overdue",
				"line_item_id", ev.AggregateID,
				"ticket_id", ev.TicketID,
				"item_number", ev.ItemNumber,
				"deadline", ev.Deadline,
				"overdue_minutes", ev.OverdueMinutes,
			)
			return nil
		},
	}

	for eventType, fn := range handlers {
		if err := dispatcher.Subscribe(eventType, events.NewSimpleEventHandler(eventType, fn)); err != nil {
			return err
		}
	}
	return nil
}
