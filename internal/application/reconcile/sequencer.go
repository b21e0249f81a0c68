package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	"github.com/warehouse-ops/ntconsole/internal/shared/errors"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
	"github.com/warehouse-ops/ntconsole/internal/shared/utils"
)

// DefaultBulkInsertDelay is the pause between two queued inserts.
const DefaultBulkInsertDelay = 250 * time.Millisecond

// QueueStore persists the raw bulk queue document. Load returns nil when
// no queue is stored.
type QueueStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Clear(ctx context.Context) error
}

// ItemCreator adds a single line item to a ticket.
type ItemCreator interface {
	CreateLineItem(ctx context.Context, ticketID string, draft ticket.LineItemDraft) (*ticket.LineItem, error)
}

// QueuedBatch is the persisted queue document.
type QueuedBatch struct {
	TicketID string                 `json:"ticket_id"`
	Items    []ticket.LineItemDraft `json:"items"`
}

// ItemFailure describes one queued item whose insert failed.
type ItemFailure struct {
	Index int    `json:"index"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// BatchResult summarizes one run over a queue.
type BatchResult struct {
	TicketID  string        `json:"ticket_id"`
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Failures  []ItemFailure `json:"failures,omitempty"`
}

// Sequencer adds a list of items to one ticket strictly one at a time.
// The queue is persisted before the first insert and shrunk after every
// attempt, so a restart resumes with the items not yet attempted.
type Sequencer struct {
	creator ItemCreator
	queue   QueueStore
	delay   time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	running atomic.Bool
	metrics Metrics
	logger  logger.Interface
}

func NewSequencer(creator ItemCreator, queue QueueStore, delay time.Duration, log logger.Interface) *Sequencer {
	if delay < 0 {
		delay = DefaultBulkInsertDelay
	}
	return &Sequencer{
		creator: creator,
		queue:   queue,
		delay:   delay,
		sleep:   sleepContext,
		metrics: nopMetrics{},
		logger:  log.With("component", "sequencer"),
	}
}

func (s *Sequencer) SetMetrics(m Metrics) {
	s.metrics = m
}

// Busy reports whether a batch is being processed.
func (s *Sequencer) Busy() bool {
	return s.running.Load()
}

// Enqueue persists the batch and processes it. Only one batch runs at a
// time; a second Enqueue while one is running fails with a conflict.
func (s *Sequencer) Enqueue(ctx context.Context, ticketID string, drafts []ticket.LineItemDraft) (*BatchResult, error) {
	if err := utils.ValidateID(ticketID); err != nil {
		return nil, err
	}
	if len(drafts) == 0 {
		return nil, errors.NewValidationError("no items to insert")
	}
	if err := utils.ValidateEach(drafts); err != nil {
		return nil, err
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, errors.NewConflictError("a bulk insert is already running")
	}
	defer s.running.Store(false)

	batch := QueuedBatch{TicketID: ticketID, Items: drafts}
	if err := s.persist(ctx, batch); err != nil {
		return nil, err
	}
	s.logger.Infow("bulk insert queued", "ticket_id", ticketID, "items", len(drafts))
	return s.process(ctx, batch)
}

// Resume processes a queue left behind by an interrupted run. A queue
// that cannot be parsed is discarded.
func (s *Sequencer) Resume(ctx context.Context) (*BatchResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, errors.NewConflictError("a bulk insert is already running")
	}
	defer s.running.Store(false)

	data, err := s.queue.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bulk queue: %w", err)
	}
	if data == nil {
		return &BatchResult{}, nil
	}

	var batch QueuedBatch
	if err := json.Unmarshal(data, &batch); err != nil || batch.TicketID == "" {
		s.logger.Warnw("discarding unreadable bulk queue", "error", err, "bytes", len(data))
		if err := s.queue.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clear bulk queue: %w", err)
		}
		return &BatchResult{}, nil
	}

	s.logger.Infow("resuming bulk insert", "ticket_id", batch.TicketID, "items", len(batch.Items))
	return s.process(ctx, batch)
}

func (s *Sequencer) process(ctx context.Context, batch QueuedBatch) (*BatchResult, error) {
	result := &BatchResult{TicketID: batch.TicketID}

	for i, draft := range batch.Items {
		if i > 0 {
			if err := s.sleep(ctx, s.delay); err != nil {
				s.logger.Warnw("bulk insert interrupted, queue kept for resume",
					"ticket_id", batch.TicketID,
					"remaining", len(batch.Items)-i,
				)
				return result, err
			}
		}

		result.Attempted++
		if _, err := s.creator.CreateLineItem(ctx, batch.TicketID, draft); err != nil {
			s.logger.Warnw("bulk insert item failed, continuing",
				"ticket_id", batch.TicketID,
				"index", i,
				"code", draft.Code,
				"error", err,
			)
			result.Failures = append(result.Failures, ItemFailure{Index: i, Code: draft.Code, Error: err.Error()})
			s.metrics.BulkItemAttempted(false)
		} else {
			result.Succeeded++
			s.metrics.BulkItemAttempted(true)
		}

		if rest := batch.Items[i+1:]; len(rest) > 0 {
			if err := s.persist(ctx, QueuedBatch{TicketID: batch.TicketID, Items: rest}); err != nil {
				s.logger.Errorw("failed to persist remaining bulk queue", "ticket_id", batch.TicketID, "error", err)
			}
		}
	}

	if err := s.queue.Clear(ctx); err != nil {
		return result, fmt.Errorf("clear bulk queue: %w", err)
	}

	s.logger.Infow("bulk insert finished",
		"ticket_id", batch.TicketID,
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
	)
	return result, nil
}

func (s *Sequencer) persist(ctx context.Context, batch QueuedBatch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode bulk queue: %w", err)
	}
	if err := s.queue.Save(ctx, data); err != nil {
		return fmt.Errorf("save bulk queue: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
