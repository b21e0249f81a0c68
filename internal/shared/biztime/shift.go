package biztime

import (
	"fmt"
	"time"
)

// Shift is one of the three fixed work windows covering a business day.
type Shift int

const (
	// ShiftMorning covers [07:30, 15:50).
	ShiftMorning Shift = 1
	// ShiftAfternoon covers [15:50, 23:20).
	ShiftAfternoon Shift = 2
	// ShiftNight covers [23:20, 07:30) across midnight.
	ShiftNight Shift = 3
)

const (
	morningStart   = 7*time.Hour + 30*time.Minute
	afternoonStart = 15*time.Hour + 50*time.Minute
	nightStart     = 23*time.Hour + 20*time.Minute
)

// Shifts lists every shift in numbering order.
var Shifts = []Shift{ShiftMorning, ShiftAfternoon, ShiftNight}

func (s Shift) String() string {
	return fmt.Sprintf("shift %d", int(s))
}

// IsValid reports whether s is one of the three defined shifts.
func (s Shift) IsValid() bool {
	return s >= ShiftMorning && s <= ShiftNight
}

// Window returns the half-open [start, end) offsets from midnight for the
// shift. The night shift wraps, so its end is smaller than its start.
func (s Shift) Window() (start, end time.Duration) {
	switch s {
	case ShiftMorning:
		return morningStart, afternoonStart
	case ShiftAfternoon:
		return afternoonStart, nightStart
	default:
		return nightStart, morningStart
	}
}

// ShiftForTimeOfDay maps an offset from midnight to its shift.
func ShiftForTimeOfDay(tod time.Duration) Shift {
	switch {
	case tod >= morningStart && tod < afternoonStart:
		return ShiftMorning
	case tod >= afternoonStart && tod < nightStart:
		return ShiftAfternoon
	default:
		return ShiftNight
	}
}

// AssignShift returns the shift that owns instant t in the business timezone.
func AssignShift(t time.Time) Shift {
	return ShiftForTimeOfDay(TimeOfDay(t))
}

// AssignShiftFromStrings is AssignShift for a separate date and time string.
func AssignShiftFromStrings(dateStr, timeStr string) (Shift, error) {
	instant, err := ToInstant(dateStr, timeStr)
	if err != nil {
		return 0, err
	}
	return AssignShift(instant), nil
}
