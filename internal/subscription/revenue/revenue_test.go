package revenue

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"subsnap/internal/subscription/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestMonthlyRate(t *testing.T) {
	tests := []struct {
		name string
		plan models.Plan
		want string
	}{
		{"monthly used as-is", models.Plan{ListPrice: dec("99"), Interval: models.IntervalMonthly}, "99"},
		{"annual divided by twelve", models.Plan{ListPrice: dec("1200"), Interval: models.IntervalAnnual}, "100"},
		{"annual with remainder rounds", models.Plan{ListPrice: dec("100"), Interval: models.IntervalAnnual}, "8.3333"},
		{"free plan is zero", models.Plan{Interval: models.IntervalMonthly}, "0"},
		{"negative price treated as free", models.Plan{ListPrice: dec("-5"), Interval: models.IntervalMonthly}, "0"},
		{"empty interval defaults to monthly", models.Plan{ListPrice: dec("29")}, "29"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MonthlyRate(tt.plan)
			assert.True(t, dec(tt.want).Equal(got), "got %s want %s", got, tt.want)
		})
	}
}

func TestNormalize_OnlyActiveCarriesRevenue(t *testing.T) {
	rate := dec("100")

	active := Normalize(rate, models.StatusActive)
	assert.True(t, dec("100").Equal(active.Monthly))
	assert.True(t, dec("1200").Equal(active.Annual))

	for _, status := range []models.Status{models.StatusTrial, models.StatusCancelled, models.StatusExpired} {
		amounts := Normalize(rate, status)
		assert.True(t, amounts.Monthly.IsZero(), "status %s", status)
		assert.True(t, amounts.Annual.IsZero(), "status %s", status)
	}
}

func TestApply_TrialRowAlwaysZero(t *testing.T) {
	row := models.DailySnapshot{Status: models.StatusTrial}
	Apply(&row, MonthlyRate(models.Plan{ListPrice: dec("299"), Interval: models.IntervalMonthly}))

	assert.True(t, row.MRR.IsZero())
	assert.True(t, row.ARR.IsZero())
}

func TestApply_AnnualPlan(t *testing.T) {
	row := models.DailySnapshot{Status: models.StatusActive}
	Apply(&row, MonthlyRate(models.Plan{ListPrice: dec("1200"), Interval: models.IntervalAnnual}))

	assert.Equal(t, "100", row.MRR.String())
	assert.Equal(t, "1200", row.ARR.String())
}
