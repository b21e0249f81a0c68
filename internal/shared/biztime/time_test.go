package biztime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToInstant(t *testing.T) {
	MustInit(DefaultTimezone)

	tests := []struct {
		name     string
		date     string
		clock    string
		expected time.Time
	}{
		{
			name:     "iso date with seconds",
			date:     "2024-01-01",
			clock:    "10:00:00",
			expected: time.Date(2024, 1, 1, 10, 0, 0, 0, Location()),
		},
		{
			name:     "dotted date without seconds",
			date:     "31.01.2024",
			clock:    "23:45",
			expected: time.Date(2024, 1, 31, 23, 45, 0, 0, Location()),
		},
		{
			name:     "short dotted date",
			date:     "1.2.2024",
			clock:    "07:30:15",
			expected: time.Date(2024, 2, 1, 7, 30, 15, 0, Location()),
		},
		{
			name:     "surrounding whitespace",
			date:     " 2024-06-15 ",
			clock:    " 12:00:00",
			expected: time.Date(2024, 6, 15, 12, 0, 0, 0, Location()),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToInstant(tt.date, tt.clock)
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(got), "expected %v, got %v", tt.expected, got)
		})
	}
}

func TestToInstant_Malformed(t *testing.T) {
	MustInit(DefaultTimezone)

	tests := []struct {
		name  string
		date  string
		clock string
	}{
		{name: "empty date", date: "", clock: "10:00:00"},
		{name: "garbage date", date: "yesterday", clock: "10:00:00"},
		{name: "empty time", date: "2024-01-01", clock: ""},
		{name: "out of range time", date: "2024-01-01", clock: "25:61"},
		{name: "impossible date", date: "2024-02-30", clock: "10:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToInstant(tt.date, tt.clock)
			assert.Error(t, err)
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("15:50:30")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Hour+50*time.Minute+30*time.Second, got)

	got, err = ParseTimeOfDay("00:00")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), got)
}

func TestFormatRoundtrip(t *testing.T) {
	MustInit(DefaultTimezone)

	instant := time.Date(2024, 3, 9, 8, 5, 7, 0, Location())
	assert.Equal(t, "2024-03-09", FormatDate(instant))
	assert.Equal(t, "08:05:07", FormatTimeOfDay(instant))

	back, err := ToInstant(FormatDate(instant), FormatTimeOfDay(instant))
	require.NoError(t, err)
	assert.True(t, instant.Equal(back))
}

func TestTimeOfDay_UsesBusinessTimezone(t *testing.T) {
	MustInit(DefaultTimezone)

	// 06:00 UTC in winter is 07:00 in Prague.
	utc := time.Date(2024, 1, 10, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, 7*time.Hour, TimeOfDay(utc))
}

func TestStartOfDayUTC(t *testing.T) {
	MustInit(DefaultTimezone)

	instant := time.Date(2024, 1, 10, 0, 30, 0, 0, Location())
	start := StartOfDayUTC(instant)
	assert.Equal(t, time.Date(2024, 1, 9, 23, 0, 0, 0, time.UTC), start)
}
