package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountState is the replay cursor's view of one account. It lives for a single
// replay and is never shared across accounts.
type AccountState struct {
	AccountID     string
	PlanID        string
	PlanTier      int
	Status        Status
	PlanEntryDate time.Time
	MonthlyRate   decimal.Decimal
	SignupDate    time.Time
	EndDate       *time.Time
}

// Started reports whether any event has been applied yet.
func (s AccountState) Started() bool {
	return !s.SignupDate.IsZero()
}

// DailySnapshot is one row of fact_subscription_daily: the end-of-day state of an
// account plus its lifecycle flags and revenue.
type DailySnapshot struct {
	Date       time.Time
	AccountID  string
	PlanID     string
	PlanTier   int
	Status     Status
	SignupDate time.Time

	MRR decimal.Decimal
	ARR decimal.Decimal

	ActiveUsers int64
	EventCount  int64

	IsNewSubscription bool
	IsChurned         bool
	IsExpansion       bool
	IsContraction     bool
	DaysSinceSignup   int
	DaysOnCurrentPlan int

	RunID    string
	LoadedAt time.Time
}

// DateKey is the row's dim_date key.
func (s DailySnapshot) DateKey() int {
	return DateKey(s.Date)
}
