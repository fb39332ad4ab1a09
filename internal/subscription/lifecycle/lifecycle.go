// Package lifecycle derives the per-day transition flags of a snapshot history.
package lifecycle

import "subsnap/internal/subscription/models"

// Classify sets the lifecycle fields of cur given the previous day's row for the
// same account, or nil on the first day.
func Classify(prev *models.DailySnapshot, cur models.DailySnapshot) models.DailySnapshot {
	cur.IsNewSubscription = models.Day(cur.Date).Equal(models.Day(cur.SignupDate))
	cur.DaysSinceSignup = models.DaysBetween(cur.SignupDate, cur.Date)
	cur.IsChurned = false
	cur.IsExpansion = false
	cur.IsContraction = false
	cur.DaysOnCurrentPlan = 0

	if prev == nil {
		return cur
	}

	cur.IsChurned = !prev.Status.IsTerminal() && cur.Status.IsTerminal()
	switch {
	case cur.PlanTier > prev.PlanTier:
		cur.IsExpansion = true
	case cur.PlanTier < prev.PlanTier:
		cur.IsContraction = true
	}
	if cur.PlanID == prev.PlanID {
		cur.DaysOnCurrentPlan = prev.DaysOnCurrentPlan + 1
	}
	return cur
}

// ClassifyAll classifies an account's rows in date order, in place, and returns
// them.
func ClassifyAll(rows []models.DailySnapshot) []models.DailySnapshot {
	for i := range rows {
		var prev *models.DailySnapshot
		if i > 0 {
			prev = &rows[i-1]
		}
		rows[i] = Classify(prev, rows[i])
	}
	return rows
}
