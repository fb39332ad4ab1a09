package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subsnap/pkg/platform/sentinel"
)

func TestDay_TruncatesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	ts := time.Date(2024, 1, 15, 3, 30, 0, 0, loc) // 2024-01-14 18:30 UTC

	assert.Equal(t, time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC), Day(ts))
}

func TestDateKeyRoundTrip(t *testing.T) {
	day := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 20240229, DateKey(day))
	assert.Equal(t, day, DateFromKey(20240229))
}

func TestDaysBetween(t *testing.T) {
	jan1 := time.Date(2024, 1, 1, 23, 59, 0, 0, time.UTC)
	feb1 := time.Date(2024, 2, 1, 0, 1, 0, 0, time.UTC)

	assert.Equal(t, 31, DaysBetween(jan1, feb1))
	assert.Equal(t, -31, DaysBetween(feb1, jan1))
	assert.Equal(t, 0, DaysBetween(jan1, jan1))
}

func TestDateRange(t *testing.T) {
	start := time.Date(2024, 2, 27, 12, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	days := DateRange(start, end)
	require.Len(t, days, 4)
	assert.Equal(t, 20240227, DateKey(days[0]))
	assert.Equal(t, 20240229, DateKey(days[2]))
	assert.Equal(t, 20240301, DateKey(days[3]))

	assert.Empty(t, DateRange(end, start))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Cancelled ")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, s)
	assert.True(t, s.IsTerminal())

	_, err = ParseStatus("paused")
	assert.Error(t, err)

	assert.False(t, StatusTrial.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
}

func TestCatalog(t *testing.T) {
	c := Catalog{
		"pro":   {ID: "pro", Tier: 2},
		"basic": {ID: "basic", Tier: 1},
		"free":  {ID: "free", Tier: 0},
	}

	plan, err := c.Lookup("pro")
	require.NoError(t, err)
	assert.Equal(t, 2, plan.Tier)

	_, err = c.Lookup("platinum")
	assert.ErrorIs(t, err, sentinel.ErrUnknownPlan)

	plans := c.Plans()
	require.Len(t, plans, 3)
	assert.Equal(t, []string{"free", "basic", "pro"}, []string{plans[0].ID, plans[1].ID, plans[2].ID})
}
