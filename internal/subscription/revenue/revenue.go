// Package revenue turns listed plan prices into normalized recurring revenue.
package revenue

import (
	"github.com/shopspring/decimal"

	"subsnap/internal/subscription/models"
)

// Scale is the number of decimal places kept on normalized figures.
const Scale = 4

var monthsPerYear = decimal.NewFromInt(12)

// Amounts is a row's normalized monthly (MRR) and annual (ARR) revenue.
type Amounts struct {
	Monthly decimal.Decimal
	Annual  decimal.Decimal
}

// MonthlyRate maps a plan's listed price to a monthly figure: monthly prices are
// used as-is, annual prices are spread over twelve months, free plans are zero.
func MonthlyRate(plan models.Plan) decimal.Decimal {
	if plan.ListPrice.IsZero() || plan.ListPrice.IsNegative() {
		return decimal.Zero
	}
	switch plan.Interval {
	case models.IntervalAnnual:
		return plan.ListPrice.DivRound(monthsPerYear, Scale)
	default:
		return plan.ListPrice.Round(Scale)
	}
}

// Normalize applies the status rule: only active subscriptions carry revenue.
func Normalize(monthlyRate decimal.Decimal, status models.Status) Amounts {
	if status != models.StatusActive || monthlyRate.IsZero() {
		return Amounts{Monthly: decimal.Zero, Annual: decimal.Zero}
	}
	monthly := monthlyRate.Round(Scale)
	return Amounts{
		Monthly: monthly,
		Annual:  monthly.Mul(monthsPerYear).Round(Scale),
	}
}

// Apply fills MRR and ARR on a snapshot row.
func Apply(row *models.DailySnapshot, monthlyRate decimal.Decimal) {
	amounts := Normalize(monthlyRate, row.Status)
	row.MRR = amounts.Monthly
	row.ARR = amounts.Annual
}
