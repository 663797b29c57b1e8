package invest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/invest-engine/invest"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddMonthsClamped(t *testing.T) {
	tests := []struct {
		name   string
		from   time.Time
		months int
		want   string
	}{
		{"mid month", date(2025, time.January, 15), 6, "2025-07-15"},
		{"jan 31 to feb", date(2025, time.January, 31), 1, "2025-02-28"},
		{"jan 31 to leap feb", date(2024, time.January, 31), 1, "2024-02-29"},
		{"aug 31 to nov", date(2025, time.August, 31), 3, "2025-11-30"},
		{"crosses year", date(2025, time.October, 31), 4, "2026-02-28"},
		{"twelve months", date(2024, time.February, 29), 12, "2025-02-28"},
		{"time of day dropped", time.Date(2025, time.May, 10, 22, 15, 0, 0, time.UTC), 1, "2025-06-10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, invest.FormatDate(invest.AddMonthsClamped(tt.from, tt.months)))
		})
	}
}

func TestTomorrow(t *testing.T) {
	got := invest.Tomorrow(time.Date(2025, time.December, 31, 18, 0, 0, 0, time.UTC))
	assert.Equal(t, date(2026, time.January, 1), got)
}

func TestDateOf_NormalizesToUTC(t *testing.T) {
	tz := time.FixedZone("UTC+5", 5*3600)
	// 02:00 on Mar 2 at +05:00 is still Mar 1 in UTC.
	got := invest.DateOf(time.Date(2025, time.March, 2, 2, 0, 0, 0, tz))
	assert.Equal(t, date(2025, time.March, 1), got)
}
