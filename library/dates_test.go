package library

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("16/03/2025")
	require.NoError(t, err)
	assert.Equal(t, 2025, d.Year())
	assert.Equal(t, time.March, d.Month())
	assert.Equal(t, 16, d.Day())
	assert.Equal(t, "16/03/2025", FormatDate(d))
}

func TestParseDateRejectsGarbage(t *testing.T) {
	testCases := []string{"", "2025-03-16", "16/13/2025", "99/01/2025", "16/3/25"}
	for _, tt := range testCases {
		_, err := ParseDate(tt)
		assert.Error(t, err, "input %q", tt)
	}
}

func TestDaysBetween(t *testing.T) {
	day := func(s string) time.Time {
		d, err := ParseDate(s)
		require.NoError(t, err)
		return d
	}

	testCases := []struct {
		from, to string
		days     int
	}{
		{"01/01/2025", "01/01/2025", 0},
		{"01/01/2025", "15/01/2025", 14},
		{"01/01/2025", "16/01/2025", 15},
		{"01/01/2025", "21/01/2025", 20},
		{"28/02/2025", "01/03/2025", 1},
		{"31/12/2024", "01/01/2025", 1},
		{"15/01/2025", "01/01/2025", -14},
	}
	for _, tt := range testCases {
		assert.Equal(t, tt.days, DaysBetween(day(tt.from), day(tt.to)), "%s -> %s", tt.from, tt.to)
	}
}

// Hours must never count: late evening to early morning is still one day.
func TestDaysBetweenIgnoresClockTime(t *testing.T) {
	from := time.Date(2025, 1, 1, 23, 59, 0, 0, time.UTC)
	to := time.Date(2025, 1, 2, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 1, DaysBetween(from, to))
	assert.Equal(t, 0, DaysBetween(from, from.Add(time.Minute)))
}
