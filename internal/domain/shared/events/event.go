// Package events carries the console's user-facing notifications (created,
// status changed, overdue) from the components that detect them to the
// handlers that deliver them.
package events

import (
	"time"
)

// DomainEvent represents a domain event interface
type DomainEvent interface {
	// GetAggregateID returns the id of the entity the event is about
	GetAggregateID() string
	GetEventType() string
	GetOccurredAt() time.Time
	// GetVersion returns the event schema version
	GetVersion() int
}

// BaseEvent provides common fields for all domain events
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	OccurredAt  time.Time `json:"occurred_at"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string   { return e.AggregateID }
func (e BaseEvent) GetEventType() string     { return e.EventType }
func (e BaseEvent) GetOccurredAt() time.Time { return e.OccurredAt }
func (e BaseEvent) GetVersion() int          { return e.Version }

// EventHandler represents a handler for domain events
type EventHandler interface {
	Handle(event DomainEvent) error
	CanHandle(eventType string) bool
}

// EventPublisher is what notification sources depend on.
type EventPublisher interface {
	Publish(event DomainEvent) error
	PublishAll(events []DomainEvent) error
}

type EventSubscriber interface {
	Subscribe(eventType string, handler EventHandler) error
	Unsubscribe(eventType string, handler EventHandler) error
}

// EventDispatcher combines publisher and subscriber functionality
type EventDispatcher interface {
	EventPublisher
	EventSubscriber
	Start() error
	Stop() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(DomainEvent) error     { return nil }
func (NopPublisher) PublishAll([]DomainEvent) error { return nil }
