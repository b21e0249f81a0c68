// Package biztime provides utilities for business timezone calculations.
// All transport uses UTC instants. The warehouse records creation and
// payment as separate localized date and time-of-day strings; this package
// turns those into instants in the business timezone and back.
//
// Design principles:
// - Date and time strings are always interpreted in the business timezone
// - Implicit Local timezone is prohibited
// - Parsing never panics; callers receive an error and decide how to degrade
package biztime

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTimezone is the default business timezone.
	DefaultTimezone = "Europe/Prague"

	// DateLayout is the canonical layout for business dates.
	DateLayout = "2006-01-02"
	// TimeLayout is the canonical layout for business times of day.
	TimeLayout = "15:04:05"
)

// dateLayouts lists accepted date layouts in order of preference. The
// localized dotted form is what operators type on the floor.
var dateLayouts = []string{DateLayout, "02.01.2006", "2.1.2006"}

var timeLayouts = []string{TimeLayout, "15:04"}

var (
	bizLocation     *time.Location
	bizLocationOnce sync.Once
	initErr         error
)

// Init initializes the business timezone. Should be called once at startup.
// If tz is empty, defaults to Europe/Prague.
func Init(tz string) error {
	bizLocationOnce.Do(func() {
		if tz == "" {
			tz = DefaultTimezone
		}
		bizLocation, initErr = time.LoadLocation(tz)
	})
	return initErr
}

// MustInit initializes the business timezone and panics on error.
func MustInit(tz string) {
	if err := Init(tz); err != nil {
		panic(fmt.Sprintf("failed to initialize business timezone %q: %v", tz, err))
	}
}

// Location returns the business timezone location.
// If not explicitly initialized, automatically initializes with the default timezone.
func Location() *time.Location {
	if bizLocation == nil {
		if err := Init(""); err != nil {
			panic(fmt.Sprintf("biztime: failed to auto-initialize with default timezone: %v", err))
		}
	}
	return bizLocation
}

// NowUTC returns current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// StartOfDayUTC returns the start of day (00:00:00) in business timezone, converted to UTC.
func StartOfDayUTC(t time.Time) time.Time {
	bizTime := t.In(Location())
	startOfDay := time.Date(bizTime.Year(), bizTime.Month(), bizTime.Day(), 0, 0, 0, 0, Location())
	return startOfDay.UTC()
}

// ToBizTimezone converts a UTC time to business timezone for display.
func ToBizTimezone(t time.Time) time.Time {
	return t.In(Location())
}

// ParseDate parses a business date string as business timezone midnight.
// Both ISO (2024-01-31) and dotted (31.01.2024) forms are accepted.
func ParseDate(dateStr string) (time.Time, error) {
	s := strings.TrimSpace(dateStr)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, Location()); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date format %q", dateStr)
}

// ParseTimeOfDay parses a wall-clock time string (15:04:05 or 15:04) and
// returns the offset from midnight.
func ParseTimeOfDay(timeStr string) (time.Duration, error) {
	s := strings.TrimSpace(timeStr)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return wallClock(t), nil
		}
	}
	return 0, fmt.Errorf("invalid time format %q", timeStr)
}

// ToInstant combines a localized date and time of day into one instant in
// the business timezone.
func ToInstant(dateStr, timeStr string) (time.Time, error) {
	day, err := ParseDate(dateStr)
	if err != nil {
		return time.Time{}, err
	}
	tod, err := ParseTimeOfDay(timeStr)
	if err != nil {
		return time.Time{}, err
	}
	// Build from wall-clock fields so DST transitions resolve the same way
	// time.Date does.
	h := int(tod / time.Hour)
	m := int(tod % time.Hour / time.Minute)
	sec := int(tod % time.Minute / time.Second)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, sec, 0, Location()), nil
}

// TimeOfDay returns the wall-clock offset from midnight of t in the
// business timezone.
func TimeOfDay(t time.Time) time.Duration {
	return wallClock(t.In(Location()))
}

// FormatDate formats t as a business date.
func FormatDate(t time.Time) string {
	return t.In(Location()).Format(DateLayout)
}

// FormatTimeOfDay formats t as a business time of day.
func FormatTimeOfDay(t time.Time) string {
	return t.In(Location()).Format(TimeLayout)
}

func wallClock(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}
