package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(id, eventType string) BaseEvent {
	return BaseEvent{AggregateID: id, EventType: eventType, OccurredAt: time.Now(), Version: 1}
}

func TestInMemoryEventDispatcher_DeliversInPublishOrder(t *testing.T) {
	d := NewInMemoryEventDispatcher(10, nil)

	var mu sync.Mutex
	var got []string
	require.NoError(t, d.Subscribe("item.created", NewSimpleEventHandler("item.created", func(e DomainEvent) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.GetAggregateID())
		return nil
	})))

	require.NoError(t, d.Start())
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, d.Publish(testEvent(id, "item.created")))
	}
	require.NoError(t, d.Stop())

	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestInMemoryEventDispatcher_HandlerFailuresDoNotStopDelivery(t *testing.T) {
	d := NewInMemoryEventDispatcher(10, nil)

	calls := 0
	require.NoError(t, d.Subscribe("x", NewSimpleEventHandler("x", func(DomainEvent) error {
		panic("boom")
	})))
	require.NoError(t, d.Subscribe("x", NewSimpleEventHandler("x", func(DomainEvent) error {
		return errors.New("failed")
	})))
	require.NoError(t, d.Subscribe("x", NewSimpleEventHandler("x", func(DomainEvent) error {
		calls++
		return nil
	})))

	require.NoError(t, d.Start())
	require.NoError(t, d.PublishAll([]DomainEvent{testEvent("1", "x"), testEvent("2", "x")}))
	require.NoError(t, d.Stop())

	assert.Equal(t, 2, calls)
}

func TestInMemoryEventDispatcher_Lifecycle(t *testing.T) {
	d := NewInMemoryEventDispatcher(1, nil)

	assert.Error(t, d.Publish(testEvent("1", "x")), "not running")
	assert.Error(t, d.Stop())

	require.NoError(t, d.Start())
	assert.Error(t, d.Start())
	require.NoError(t, d.Stop())
}

func TestInMemoryEventDispatcher_Unsubscribe(t *testing.T) {
	d := NewInMemoryEventDispatcher(10, nil)
	h := NewSimpleEventHandler("x", nil)

	require.NoError(t, d.Subscribe("x", h))
	require.NoError(t, d.Unsubscribe("x", h))
	require.NoError(t, d.Unsubscribe("y", h))

	assert.Empty(t, d.handlers)
	assert.Error(t, d.Subscribe("", h))
	assert.Error(t, d.Subscribe("x", nil))
}
