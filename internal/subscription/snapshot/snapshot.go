// Package snapshot rebuilds an account's continuous daily history from its
// ordered change events.
//
// Replay is a fold: Apply moves an AccountState forward by one event and Emit
// renders the end-of-day row for a state. Neither touches shared data, so
// accounts can be replayed in parallel.
package snapshot

import (
	"fmt"
	"time"

	"subsnap/internal/subscription/lifecycle"
	"subsnap/internal/subscription/models"
	"subsnap/internal/subscription/revenue"
)

// Apply returns the state after ev. An event whose plan is not in the catalog
// fails the account.
func Apply(state models.AccountState, ev models.SubscriptionEvent, catalog models.Catalog) (models.AccountState, error) {
	plan, err := catalog.Lookup(ev.PlanID)
	if err != nil {
		return state, fmt.Errorf("apply event %d for account %s: %w", ev.Seq, ev.AccountID, err)
	}

	day := ev.Day()
	next := state
	next.AccountID = ev.AccountID
	if !state.Started() {
		next.SignupDate = day
		next.PlanEntryDate = day
	} else if state.PlanID != plan.ID {
		next.PlanEntryDate = day
	}
	next.PlanID = plan.ID
	next.PlanTier = plan.Tier
	next.Status = ev.Status
	next.MonthlyRate = revenue.MonthlyRate(plan)
	next.EndDate = ev.EndDate
	return next, nil
}

// Emit renders the end-of-day row for state on day. Lifecycle flags are left to
// the classifier.
func Emit(state models.AccountState, day time.Time) models.DailySnapshot {
	row := models.DailySnapshot{
		Date:       models.Day(day),
		AccountID:  state.AccountID,
		PlanID:     state.PlanID,
		PlanTier:   state.PlanTier,
		Status:     state.Status,
		SignupDate: state.SignupDate,
	}
	revenue.Apply(&row, state.MonthlyRate)
	return row
}

// Replay walks every day from the account's signup through asOf inclusive and
// returns one classified row per day. events must be ordered earliest first.
// Events after asOf are ignored; an account that signs up after asOf yields no
// rows.
func Replay(accountID string, events []models.SubscriptionEvent, asOf time.Time, catalog models.Catalog) ([]models.DailySnapshot, error) {
	asOf = models.Day(asOf)
	if len(events) == 0 {
		return nil, nil
	}
	signup := events[0].Day()
	if signup.After(asOf) {
		return nil, nil
	}

	rows := make([]models.DailySnapshot, 0, models.DaysBetween(signup, asOf)+1)
	state := models.AccountState{AccountID: accountID}
	cursor := 0
	for day := signup; !day.After(asOf); day = day.AddDate(0, 0, 1) {
		for cursor < len(events) && !events[cursor].Day().After(day) {
			next, err := Apply(state, events[cursor], catalog)
			if err != nil {
				return nil, err
			}
			state = next
			cursor++
		}
		rows = append(rows, Emit(state, day))
	}

	return lifecycle.ClassifyAll(rows), nil
}
