package reconcile

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	"github.com/warehouse-ops/ntconsole/internal/shared/errors"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
)

type memQueue struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func (q *memQueue) Load(context.Context) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.data, nil
}

func (q *memQueue) Save(_ context.Context, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.data = append([]byte(nil), data...)
	q.saves++
	return nil
}

func (q *memQueue) Clear(context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.data = nil
	return nil
}

func (q *memQueue) batch(t *testing.T) QueuedBatch {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	var b QueuedBatch
	require.NoError(t, json.Unmarshal(q.data, &b))
	return b
}

type creatorFunc func(ctx context.Context, ticketID string, draft ticket.LineItemDraft) (*ticket.LineItem, error)

func (f creatorFunc) CreateLineItem(ctx context.Context, ticketID string, draft ticket.LineItemDraft) (*ticket.LineItem, error) {
	return f(ctx, ticketID, draft)
}

func drafts(n int) []ticket.LineItemDraft {
	out := make([]ticket.LineItemDraft, n)
	for i := range out {
		out[i] = ticket.LineItemDraft{Code: fmt.Sprintf("MAT-%d", i+1), Quantity: 1}
	}
	return out
}

func newTestSequencer(creator ItemCreator, queue QueueStore) (*Sequencer, *[]time.Duration) {
	s := NewSequencer(creator, queue, DefaultBulkInsertDelay, logger.NewNopLogger())
	var slept []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return s, &slept
}

func TestSequencer_ContinuesPastFailure(t *testing.T) {
	queue := &memQueue{}
	attempts := map[string]int{}
	creator := creatorFunc(func(_ context.Context, ticketID string, d ticket.LineItemDraft) (*ticket.LineItem, error) {
		attempts[d.Code]++
		if d.Code == "MAT-3" {
			return nil, stderrors.New("remote rejected")
		}
		return &ticket.LineItem{ID: "id-" + d.Code, TicketID: ticketID}, nil
	})
	s, slept := newTestSequencer(creator, queue)

	result, err := s.Enqueue(context.Background(), "t1", drafts(5))
	require.NoError(t, err)

	assert.Equal(t, 5, result.Attempted)
	assert.Equal(t, 4, result.Succeeded)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 2, result.Failures[0].Index)
	assert.Equal(t, "MAT-3", result.Failures[0].Code)

	for code, n := range attempts {
		assert.Equal(t, 1, n, "%s attempted once", code)
	}
	assert.Len(t, attempts, 5)

	data, _ := queue.Load(context.Background())
	assert.Nil(t, data, "queue ends empty")
	assert.Equal(t, []time.Duration{
		DefaultBulkInsertDelay, DefaultBulkInsertDelay, DefaultBulkInsertDelay, DefaultBulkInsertDelay,
	}, *slept)
	assert.False(t, s.Busy())
}

func TestSequencer_InterruptedRunResumesWithRemainingItems(t *testing.T) {
	queue := &memQueue{}
	var created []string
	creator := creatorFunc(func(_ context.Context, _ string, d ticket.LineItemDraft) (*ticket.LineItem, error) {
		created = append(created, d.Code)
		return &ticket.LineItem{ID: d.Code}, nil
	})
	s, _ := newTestSequencer(creator, queue)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	s.sleep = func(ctx context.Context, _ time.Duration) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return ctx.Err()
	}

	result, err := s.Enqueue(ctx, "t1", drafts(4))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, result.Attempted)

	left := queue.batch(t)
	assert.Equal(t, "t1", left.TicketID)
	require.Len(t, left.Items, 2)
	assert.Equal(t, "MAT-3", left.Items[0].Code)

	s.sleep = func(context.Context, time.Duration) error { return nil }
	result, err = s.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, []string{"MAT-1", "MAT-2", "MAT-3", "MAT-4"}, created)

	data, _ := queue.Load(context.Background())
	assert.Nil(t, data)
}

func TestSequencer_ResumeDiscardsCorruptQueue(t *testing.T) {
	queue := &memQueue{data: []byte(`{"ticket_id": "t1", "items": [`)}
	creator := creatorFunc(func(context.Context, string, ticket.LineItemDraft) (*ticket.LineItem, error) {
		t.Fatal("nothing should be created from a corrupt queue")
		return nil, nil
	})
	s, _ := newTestSequencer(creator, queue)

	result, err := s.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Attempted)

	data, _ := queue.Load(context.Background())
	assert.Nil(t, data)
}

func TestSequencer_ResumeWithoutQueue(t *testing.T) {
	s, _ := newTestSequencer(creatorFunc(nil), &memQueue{})
	result, err := s.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &BatchResult{}, result)
}

func TestSequencer_OneBatchAtATime(t *testing.T) {
	queue := &memQueue{}
	entered := make(chan struct{})
	release := make(chan struct{})
	creator := creatorFunc(func(context.Context, string, ticket.LineItemDraft) (*ticket.LineItem, error) {
		close(entered)
		<-release
		return &ticket.LineItem{}, nil
	})
	s, _ := newTestSequencer(creator, queue)

	done := make(chan error, 1)
	go func() {
		_, err := s.Enqueue(context.Background(), "t1", drafts(1))
		done <- err
	}()
	<-entered

	assert.True(t, s.Busy())
	_, err := s.Enqueue(context.Background(), "t2", drafts(1))
	assert.True(t, errors.IsConflictError(err))

	close(release)
	require.NoError(t, <-done)
}

func TestSequencer_RejectsInvalidInput(t *testing.T) {
	s, _ := newTestSequencer(creatorFunc(nil), &memQueue{})

	_, err := s.Enqueue(context.Background(), "t1", nil)
	assert.True(t, errors.IsValidationError(err))

	_, err = s.Enqueue(context.Background(), "t1", []ticket.LineItemDraft{{Code: "", Quantity: 1}})
	assert.True(t, errors.IsValidationError(err))
}
