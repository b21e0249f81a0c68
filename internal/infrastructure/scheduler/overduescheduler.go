package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/warehouse-ops/ntconsole/internal/domain/shared/events"
	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/cache"
	"github.com/warehouse-ops/ntconsole/internal/shared/biztime"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
)

// LineItemSource lists the line items to check.
type LineItemSource interface {
	AllLineItems() []*ticket.LineItem
}

// AlertLock decides which console instance raises an alert.
type AlertLock interface {
	TryAcquireAlertLock(ctx context.Context, alertType cache.AlertType, entityID string, ttl time.Duration) (bool, error)
	ClearAlert(ctx context.Context, alertType cache.AlertType, entityID string) error
}

// OverdueGauge receives the overdue count of every run.
type OverdueGauge interface {
	OverdueItems(n int)
}

// OverdueScheduler re-evaluates every line item against its payment
// deadline and raises one LineItemOverdue notification per item per
// cooldown across all console instances.
type OverdueScheduler struct {
	items     LineItemSource
	locks     AlertLock
	publisher events.EventPublisher
	gauge     OverdueGauge
	cooldown  time.Duration
	now       func() time.Time
	logger    logger.Interface

	mu      sync.Mutex
	alerted map[string]struct{}
	// malformed remembers items already reported as unreadable.
	malformed map[string]struct{}
}

func NewOverdueScheduler(
	items LineItemSource,
	locks AlertLock,
	publisher events.EventPublisher,
	cooldown time.Duration,
	log logger.Interface,
) *OverdueScheduler {
	if cooldown <= 0 {
		cooldown = cache.DefaultAlertCooldownMinutes * time.Minute
	}
	return &OverdueScheduler{
		items:     items,
		locks:     locks,
		publisher: publisher,
		cooldown:  cooldown,
		now:       biztime.NowUTC,
		logger:    log.With("component", "overdue_scheduler"),
		alerted:   make(map[string]struct{}),
		malformed: make(map[string]struct{}),
	}
}

// SetClock replaces the scheduler's time source.
func (s *OverdueScheduler) SetClock(now func() time.Time) {
	s.now = now
}

func (s *OverdueScheduler) SetGauge(g OverdueGauge) {
	s.gauge = g
}

// Execute runs one check and returns the number of alerts raised.
func (s *OverdueScheduler) Execute(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	overdue, raised := 0, 0
	seen := make(map[string]struct{})

	for _, li := range s.items.AllLineItems() {
		if err := ctx.Err(); err != nil {
			return raised, err
		}
		seen[li.ID] = struct{}{}

		facts, err := li.Facts(now)
		if err != nil {
			if _, reported := s.malformed[li.ID]; !reported {
				s.malformed[li.ID] = struct{}{}
				s.logger.Warnw("cannot evaluate deadline of line item",
					"line_item_id", li.ID,
					"created_date", li.CreatedDate,
					"created_time", li.CreatedTime,
					"error", err,
				)
			}
			continue
		}
		delete(s.malformed, li.ID)

		if !facts.Overdue {
			s.clearAlert(ctx, li.ID)
			continue
		}
		overdue++

		acquired, err := s.locks.TryAcquireAlertLock(ctx, cache.AlertTypeLineItemOverdue, li.ID, s.cooldown)
		if err != nil {
			s.logger.Errorw("failed to acquire overdue alert lock", "line_item_id", li.ID, "error", err)
			continue
		}
		s.alerted[li.ID] = struct{}{}
		if !acquired {
			continue
		}

		if err := s.publisher.Publish(ticket.NewLineItemOverdueEvent(li, facts.Deadline, facts.OverdueMinutes, now)); err != nil {
			s.logger.Warnw("failed to publish overdue alert", "line_item_id", li.ID, "error", err)
			continue
		}
		raised++
	}

	for id := range s.alerted {
		if _, ok := seen[id]; !ok {
			s.clearAlert(ctx, id)
		}
	}
	for id := range s.malformed {
		if _, ok := seen[id]; !ok {
			delete(s.malformed, id)
		}
	}

	if s.gauge != nil {
		s.gauge.OverdueItems(overdue)
	}
	return raised, nil
}

// clearAlert ends the cooldown of an item that stopped being overdue, so
// that a later relapse alerts right away.
func (s *OverdueScheduler) clearAlert(ctx context.Context, id string) {
	if _, ok := s.alerted[id]; !ok {
		return
	}
	if err := s.locks.ClearAlert(ctx, cache.AlertTypeLineItemOverdue, id); err != nil {
		s.logger.Warnw("failed to clear overdue alert", "line_item_id", id, "error", err)
		return
	}
	delete(s.alerted, id)
}
