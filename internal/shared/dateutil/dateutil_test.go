package dateutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddMonths(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		n    int
		want time.Time
	}{
		{"plain", Date(2025, 3, 15), 1, Date(2025, 4, 15)},
		{"clamp to february", Date(2025, 1, 31), 1, Date(2025, 2, 28)},
		{"clamp to leap february", Date(2024, 1, 31), 1, Date(2024, 2, 29)},
		{"year rollover", Date(2025, 11, 30), 3, Date(2026, 2, 28)},
		{"negative", Date(2025, 3, 31), -1, Date(2025, 2, 28)},
		{"negative across year", Date(2025, 1, 15), -2, Date(2024, 11, 15)},
		{"twelve", Date(2025, 5, 10), 12, Date(2026, 5, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddMonths(tt.from, tt.n))
		})
	}
}

func TestAddYearsLeapDay(t *testing.T) {
	assert.Equal(t, Date(2025, 2, 28), AddYears(Date(2024, 2, 29), 1))
	assert.Equal(t, Date(2028, 2, 29), AddYears(Date(2024, 2, 29), 4))
}

func TestClampDay(t *testing.T) {
	assert.Equal(t, Date(2025, 4, 30), ClampDay(2025, 4, 31))
	assert.Equal(t, Date(2025, 4, 12), ClampDay(2025, 4, 12))
	assert.Equal(t, 29, DaysIn(2024, 2))
	assert.Equal(t, 28, DaysIn(2100, 2))
}

func TestTruncateAndParse(t *testing.T) {
	ts := time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, Date(2025, 6, 1), Truncate(ts))

	d, err := Parse("2025-06-01")
	assert.NoError(t, err)
	assert.Equal(t, Date(2025, 6, 1), d)

	_, err = Parse("06/01/2025")
	assert.Error(t, err)
}

func TestFixedClock(t *testing.T) {
	c := FixedClock{Date: time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)}
	assert.Equal(t, Date(2025, 6, 1), c.Today())
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 0, DaysBetween(Date(2024, 2, 28), Date(2024, 2, 28)))
	assert.Equal(t, 2, DaysBetween(Date(2024, 2, 28), Date(2024, 3, 1)))
	assert.Equal(t, 366, DaysBetween(Date(2024, 1, 1), Date(2025, 1, 1)))
	assert.Equal(t, -1, DaysBetween(Date(2024, 1, 2), Date(2024, 1, 1)))
}
