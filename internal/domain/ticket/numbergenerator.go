package ticket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warehouse-ops/ntconsole/internal/shared/biztime"
)

const numberPrefix = "NT"

type NumberGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// SequenceLoader returns the highest sequence already issued for a
// business date key (YYYYMMDD), or 0 when none was.
type SequenceLoader func(ctx context.Context, dateKey string) (int, error)

// DefaultNumberGenerator issues NT-YYYYMMDD-NNNN numbers per business day.
// The first number of a day continues from whatever the loader reports,
// so restarts do not reissue numbers already stored.
type DefaultNumberGenerator struct {
	mu       sync.Mutex
	counters map[string]int
	load     SequenceLoader
	now      func() time.Time
}

func NewDefaultNumberGenerator(load SequenceLoader) *DefaultNumberGenerator {
	return &DefaultNumberGenerator{
		counters: make(map[string]int),
		load:     load,
		now:      biztime.NowUTC,
	}
}

// SetClock replaces the generator's time source.
func (g *DefaultNumberGenerator) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

func (g *DefaultNumberGenerator) Generate(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	dateKey := biztime.ToBizTimezone(g.now()).Format("20060102")

	counter, exists := g.counters[dateKey]
	if !exists && g.load != nil {
		last, err := g.load(ctx, dateKey)
		if err != nil {
			return "", fmt.Errorf("failed to load ticket sequence for %s: %w", dateKey, err)
		}
		counter = last
	}
	counter++
	g.counters[dateKey] = counter

	return FormatNumber(dateKey, counter), nil
}

// FormatNumber renders a ticket number from its date key and sequence.
func FormatNumber(dateKey string, seq int) string {
	return fmt.Sprintf("%s%04d", NumberDayPrefix(dateKey), seq)
}

// NumberDayPrefix is the part shared by every number issued on a date key.
func NumberDayPrefix(dateKey string) string {
	return numberPrefix + "-" + dateKey + "-"
}

// ParseNumberSequence extracts the sequence from a ticket number.
func ParseNumberSequence(number string) (dateKey string, seq int, err error) {
	if _, err := fmt.Sscanf(number, numberPrefix+"-%8s-%d", &dateKey, &seq); err != nil {
		return "", 0, fmt.Errorf("invalid ticket number %q: %w", number, err)
	}
	return dateKey, seq, nil
}
