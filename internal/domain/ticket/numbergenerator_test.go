package ticket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultNumberGenerator_ContinuesFromLoadedSequence(t *testing.T) {
	loads := 0
	gen := NewDefaultNumberGenerator(func(ctx context.Context, dateKey string) (int, error) {
		loads++
		assert.Equal(t, "20240101", dateKey)
		return 7, nil
	})
	gen.SetClock(func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) })

	first, err := gen.Generate(context.Background())
	require.NoError(t, err)
	second, err := gen.Generate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "NT-20240101-0008", first)
	assert.Equal(t, "NT-20240101-0009", second)
	assert.Equal(t, 1, loads)
}

func TestDefaultNumberGenerator_UsesBusinessDate(t *testing.T) {
	gen := NewDefaultNumberGenerator(nil)
	// 23:30 UTC on New Year's Eve is already Jan 1st in Prague
	gen.SetClock(func() time.Time { return time.Date(2023, 12, 31, 23, 30, 0, 0, time.UTC) })

	number, err := gen.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "NT-20240101-0001", number)
}

func TestDefaultNumberGenerator_LoaderError(t *testing.T) {
	gen := NewDefaultNumberGenerator(func(ctx context.Context, dateKey string) (int, error) {
		return 0, errors.New("db down")
	})

	_, err := gen.Generate(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestParseNumberSequence(t *testing.T) {
	dateKey, seq, err := ParseNumberSequence("NT-20240101-0042")
	require.NoError(t, err)
	assert.Equal(t, "20240101", dateKey)
	assert.Equal(t, 42, seq)

	_, _, err = ParseNumberSequence("T-1")
	assert.Error(t, err)
}
