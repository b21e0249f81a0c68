package pubsub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

type recorder struct {
	mu     sync.Mutex
	events []ticket.ChangeEvent
}

func (r *recorder) handle(_ context.Context, ev ticket.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []ticket.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ticket.ChangeEvent(nil), r.events...)
}

func TestRedisFeedBus_DeliversInOrderPerTable(t *testing.T) {
	client, _ := setupTestRedis(t)
	bus := NewRedisFeedBus(client, logger.NewNopLogger())
	ctx := context.Background()

	var items recorder
	sub, err := bus.Subscribe(ctx, ticket.TableLineItems, items.handle)
	require.NoError(t, err)
	defer sub.Close()

	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		require.NoError(t, bus.Publish(ctx, ticket.Insert{In: ticket.TableLineItems, New: ticket.Row(`{"id":"` + id + `","ticket_id":"t1"}`)}))
	}
	// a ticket event is not delivered to the line item subscription
	require.NoError(t, bus.Publish(ctx, ticket.Delete{In: ticket.TableTickets, Old: ticket.Row(`{"id":"t1"}`)}))

	require.Eventually(t, func() bool { return len(items.snapshot()) == len(ids) }, 2*time.Second, 10*time.Millisecond)

	var got []string
	for _, ev := range items.snapshot() {
		ins, ok := ev.(ticket.Insert)
		require.True(t, ok)
		h, err := ins.New.Header()
		require.NoError(t, err)
		got = append(got, h.ID)
	}
	assert.Equal(t, ids, got)
}

func TestRedisFeedBus_SkipsMalformedPayloads(t *testing.T) {
	client, mr := setupTestRedis(t)
	bus := NewRedisFeedBus(client, logger.NewNopLogger())
	ctx := context.Background()

	var tickets recorder
	sub, err := bus.Subscribe(ctx, ticket.TableTickets, tickets.handle)
	require.NoError(t, err)
	defer sub.Close()

	mr.Publish(FeedChannel(ticket.TableTickets), `not json`)
	mr.Publish(FeedChannel(ticket.TableTickets), `{"table":"line_items","kind":"insert","new":{"id":"x"}}`)
	require.NoError(t, bus.Publish(ctx, ticket.Insert{In: ticket.TableTickets, New: ticket.Row(`{"id":"t1"}`)}))

	require.Eventually(t, func() bool { return len(tickets.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, ticket.ChangeInsert, tickets.snapshot()[0].Kind())
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	client, _ := setupTestRedis(t)
	bus := NewRedisFeedBus(client, logger.NewNopLogger())
	ctx := context.Background()

	var tickets recorder
	sub, err := bus.Subscribe(ctx, ticket.TableTickets, tickets.handle)
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	assert.NotPanics(t, func() { _ = sub.Close() })

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("delivery goroutine did not exit")
	}

	require.NoError(t, bus.Publish(ctx, ticket.Insert{In: ticket.TableTickets, New: ticket.Row(`{"id":"t1"}`)}))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, tickets.snapshot())
}

func TestSubscription_CloseFromHandler(t *testing.T) {
	client, _ := setupTestRedis(t)
	bus := NewRedisFeedBus(client, logger.NewNopLogger())
	ctx := context.Background()

	var sub *Subscription
	ready := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	sub, err := bus.Subscribe(ctx, ticket.TableTickets, func(context.Context, ticket.ChangeEvent) {
		<-ready
		mu.Lock()
		calls++
		mu.Unlock()
		_ = sub.Close()
	})
	require.NoError(t, err)
	close(ready)

	require.NoError(t, bus.Publish(ctx, ticket.Insert{In: ticket.TableTickets, New: ticket.Row(`{"id":"t1"}`)}))
	require.NoError(t, bus.Publish(ctx, ticket.Insert{In: ticket.TableTickets, New: ticket.Row(`{"id":"t2"}`)}))

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("delivery goroutine did not exit")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestRedisFeedBus_SubscribeRejectsUnknownTable(t *testing.T) {
	client, _ := setupTestRedis(t)
	bus := NewRedisFeedBus(client, logger.NewNopLogger())

	_, err := bus.Subscribe(context.Background(), ticket.Table("robots"), func(context.Context, ticket.ChangeEvent) {})
	assert.Error(t, err)
	assert.NotEmpty(t, bus.InstanceID())
}
