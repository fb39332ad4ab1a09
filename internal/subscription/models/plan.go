package models

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"subsnap/pkg/platform/sentinel"
)

// BillingInterval is how often a plan's listed price is charged.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalAnnual  BillingInterval = "annual"
)

// Plan is a catalog entry. Tier orders plans for expansion/contraction.
type Plan struct {
	ID        string
	Name      string
	Tier      int
	ListPrice decimal.Decimal
	Interval  BillingInterval
}

// Catalog indexes plans by id.
type Catalog map[string]Plan

// Lookup returns the plan with the given id or an ErrUnknownPlan error.
func (c Catalog) Lookup(planID string) (Plan, error) {
	plan, ok := c[planID]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", sentinel.ErrUnknownPlan, planID)
	}
	return plan, nil
}

// Plans returns catalog entries ordered by tier, then id.
func (c Catalog) Plans() []Plan {
	plans := make([]Plan, 0, len(c))
	for _, p := range c {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].Tier != plans[j].Tier {
			return plans[i].Tier < plans[j].Tier
		}
		return plans[i].ID < plans[j].ID
	})
	return plans
}
