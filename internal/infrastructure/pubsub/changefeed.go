package pubsub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
)

const feedChannelPrefix = "ntconsole:feed:"

// FeedChannel returns the Redis channel a table's changes are published on.
func FeedChannel(table ticket.Table) string {
	return feedChannelPrefix + string(table)
}

// FeedHandler receives the change events of one table in arrival order.
type FeedHandler func(ctx context.Context, event ticket.ChangeEvent)

// RedisFeedBus publishes and subscribes to the per-table change feed over
// Redis Pub/Sub. Delivery is at-least-once from the consumer's point of
// view: handlers must tolerate seeing the same change twice.
type RedisFeedBus struct {
	client     *redis.Client
	logger     logger.Interface
	instanceID string
}

func NewRedisFeedBus(client *redis.Client, log logger.Interface) *RedisFeedBus {
	return &RedisFeedBus{
		client:     client,
		logger:     log.With("component", "change_feed"),
		instanceID: uuid.NewString(),
	}
}

// InstanceID identifies this bus in logs across console instances.
func (b *RedisFeedBus) InstanceID() string {
	return b.instanceID
}

// Publish sends one change event to its table's channel.
func (b *RedisFeedBus) Publish(ctx context.Context, event ticket.ChangeEvent) error {
	data, err := ticket.EncodeChangeEvent(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	if err := b.client.Publish(ctx, FeedChannel(event.Table()), data).Err(); err != nil {
		b.logger.Errorw("failed to publish change event",
			"table", event.Table(),
			"kind", event.Kind(),
			"error", err,
		)
		return fmt.Errorf("failed to publish change event: %w", err)
	}

	b.logger.Debugw("change event published",
		"table", event.Table(),
		"kind", event.Kind(),
	)
	return nil
}

// Subscribe starts delivering table's events to handler. Events are
// handed over one at a time on a single goroutine, so order within the
// table is preserved. The returned subscription must be closed.
func (b *RedisFeedBus) Subscribe(ctx context.Context, table ticket.Table, handler FeedHandler) (*Subscription, error) {
	if !table.IsValid() {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	ps := b.client.Subscribe(ctx, FeedChannel(table))

	// Wait for subscription confirmation
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", FeedChannel(table), err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &Subscription{
		table:  table,
		pubsub: ps,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	b.logger.Infow("subscribed to change feed",
		"table", table,
		"channel", FeedChannel(table),
		"instance_id", b.instanceID,
	)

	go b.deliver(runCtx, sub, handler)
	return sub, nil
}

func (b *RedisFeedBus) deliver(ctx context.Context, sub *Subscription, handler FeedHandler) {
	defer close(sub.done)
	ch := sub.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				if !sub.closed.Load() {
					b.logger.Warnw("change feed channel closed", "table", sub.table)
				}
				return
			}
			if sub.closed.Load() {
				return
			}

			event, err := ticket.DecodeChangeEvent([]byte(msg.Payload))
			if err != nil {
				b.logger.Warnw("failed to decode change event",
					"table", sub.table,
					"payload", msg.Payload,
					"error", err,
				)
				continue
			}
			if event.Table() != sub.table {
				b.logger.Warnw("change event on wrong channel",
					"channel_table", sub.table,
					"event_table", event.Table(),
				)
				continue
			}

			handler(ctx, event)
		}
	}
}

// Subscription is the handle of one table subscription.
type Subscription struct {
	table     ticket.Table
	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (s *Subscription) Table() ticket.Table {
	return s.table
}

// Close stops delivery. After it returns at most the event already being
// handed over still reaches the handler; Done reports when that is over.
// Close is safe to call any number of times, including from the handler.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		s.closeErr = s.pubsub.Close()
	})
	return s.closeErr
}

// Done is closed when the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
