package models

import "time"

// RawEvent is a subscription change as received from extraction. Nothing is
// guaranteed; the normalizer decides what is usable.
type RawEvent struct {
	AccountID string
	Timestamp *time.Time
	PlanID    string
	Status    string
	EndDate   *time.Time
	// InvalidEndDate holds an end date that was present but unreadable.
	InvalidEndDate string
	// Seq is the insertion order within the input and breaks timestamp ties.
	// Sources that leave it zero or repeat it are renumbered by input position.
	Seq int
}

// SubscriptionEvent is a validated, immutable state change for one account.
type SubscriptionEvent struct {
	AccountID string
	Timestamp time.Time
	PlanID    string
	Status    Status
	EndDate   *time.Time
	Seq       int
}

// Day is the UTC calendar day the event takes effect on.
func (e SubscriptionEvent) Day() time.Time {
	return Day(e.Timestamp)
}
