// Package activity supplies the per-day usage figures (active users and product
// events) carried on every snapshot row.
package activity

import (
	"context"
	"time"

	"subsnap/internal/subscription/models"
)

// Counts are one account's usage figures for one day.
type Counts struct {
	ActiveUsers int64
	Events      int64
}

// Counter reads usage for an account over an inclusive day range. The result is
// keyed by date key; days without usage may be absent.
type Counter interface {
	Counts(ctx context.Context, accountID string, from, to time.Time) (map[int]Counts, error)
}

// Fill copies counts onto rows by date key. Rows without a count get zeros.
func Fill(rows []models.DailySnapshot, counts map[int]Counts) {
	for i := range rows {
		c := counts[rows[i].DateKey()]
		rows[i].ActiveUsers = c.ActiveUsers
		rows[i].EventCount = c.Events
	}
}

// Noop reports no usage.
type Noop struct{}

func (Noop) Counts(context.Context, string, time.Time, time.Time) (map[int]Counts, error) {
	return map[int]Counts{}, nil
}
