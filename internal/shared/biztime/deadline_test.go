package biztime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDeadline(t *testing.T) {
	MustInit(DefaultTimezone)

	created, err := ToInstant("2024-01-01", "10:00")
	require.NoError(t, err)

	deadline := ComputeDeadline(created)
	assert.Equal(t, 2*time.Hour, deadline.Sub(created))
}

func TestPastDeadline(t *testing.T) {
	MustInit(DefaultTimezone)

	created, err := ToInstant("2024-01-01", "10:00")
	require.NoError(t, err)

	late, err := ToInstant("2024-01-01", "12:01")
	require.NoError(t, err)
	early, err := ToInstant("2024-01-01", "11:59")
	require.NoError(t, err)
	exact, err := ToInstant("2024-01-01", "12:00")
	require.NoError(t, err)

	assert.True(t, PastDeadline(created, late))
	assert.Equal(t, 1, MinutesPastDeadline(created, late))

	assert.False(t, PastDeadline(created, early))
	assert.Equal(t, 0, MinutesPastDeadline(created, early))

	assert.False(t, PastDeadline(created, exact), "deadline itself is not overdue")
	assert.Equal(t, 0, MinutesPastDeadline(created, exact))
}

func TestElapsedMinutes(t *testing.T) {
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, ElapsedMinutes(created, created))
	assert.Equal(t, 0, ElapsedMinutes(created, created.Add(59*time.Second)))
	assert.Equal(t, 1, ElapsedMinutes(created, created.Add(119*time.Second)))
	assert.Equal(t, 121, ElapsedMinutes(created, created.Add(121*time.Minute)))
	assert.Equal(t, 0, ElapsedMinutes(created, created.Add(-time.Hour)), "clock skew never yields negative minutes")
}

func TestSettlementLatency(t *testing.T) {
	tests := []struct {
		name     string
		created  time.Duration
		payment  time.Duration
		expected time.Duration
	}{
		{
			name:     "same day",
			created:  10 * time.Hour,
			payment:  11*time.Hour + 15*time.Minute,
			expected: 75 * time.Minute,
		},
		{
			name:     "overnight settlement rolls over",
			created:  23 * time.Hour,
			payment:  30 * time.Minute,
			expected: 90 * time.Minute,
		},
		{
			name:     "identical times",
			created:  8 * time.Hour,
			payment:  8 * time.Hour,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SettlementLatency(tt.created, tt.payment))
		})
	}
}
