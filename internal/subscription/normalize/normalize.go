// Package normalize turns raw extracted events into validated, per-account
// ordered subscription events.
package normalize

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"subsnap/internal/subscription/models"
	"subsnap/pkg/platform/sentinel"
)

// Defect reasons.
const (
	ReasonMissingAccount = "missing_account_id"
	ReasonMissingTime    = "missing_timestamp"
	ReasonUnknownStatus  = "unknown_status"
	ReasonMissingPlan    = "missing_plan_id"
	ReasonInvalidEndDate = "invalid_end_date"
)

// Defect records one malformed event that was skipped.
type Defect struct {
	Seq       int
	AccountID string
	Reason    string
	Detail    string
}

func (d Defect) String() string {
	if d.Detail == "" {
		return fmt.Sprintf("event %d: %s", d.Seq, d.Reason)
	}
	return fmt.Sprintf("event %d: %s (%s)", d.Seq, d.Reason, d.Detail)
}

// Result is the normalizer output. ByAccount holds every account's events
// earliest first; Accounts lists the keys sorted.
type Result struct {
	ByAccount map[string][]models.SubscriptionEvent
	Accounts  []string
	Defects   []Defect
}

// Skipped is the number of malformed events dropped.
func (r Result) Skipped() int {
	return len(r.Defects)
}

// Valid is the number of events kept.
func (r Result) Valid() int {
	return lo.SumBy(lo.Values(r.ByAccount), func(events []models.SubscriptionEvent) int {
		return len(events)
	})
}

// Normalize validates raw events, groups them by account and orders each group by
// timestamp. Events sharing a timestamp keep their input order, so the later one
// wins when replayed. Malformed events are reported as defects, never as errors;
// the only error is ErrNoValidEvents.
func Normalize(raw []models.RawEvent) (Result, error) {
	var (
		valid   []models.SubscriptionEvent
		defects []Defect
	)
	trusted := distinctSeqs(raw)
	for i, r := range raw {
		seq := i + 1
		if trusted {
			seq = r.Seq
		}
		event, defect, ok := validate(r, seq)
		if !ok {
			defects = append(defects, defect)
			continue
		}
		valid = append(valid, event)
	}

	if len(valid) == 0 {
		return Result{Defects: defects}, fmt.Errorf("normalize %d events: %w", len(raw), sentinel.ErrNoValidEvents)
	}

	byAccount := lo.GroupBy(valid, func(e models.SubscriptionEvent) string { return e.AccountID })
	for _, events := range byAccount {
		sort.SliceStable(events, func(i, j int) bool {
			if !events[i].Timestamp.Equal(events[j].Timestamp) {
				return events[i].Timestamp.Before(events[j].Timestamp)
			}
			return events[i].Seq < events[j].Seq
		})
	}

	accounts := lo.Keys(byAccount)
	sort.Strings(accounts)

	return Result{ByAccount: byAccount, Accounts: accounts, Defects: defects}, nil
}

// distinctSeqs reports whether every event carries its own positive sequence
// number. Otherwise the whole input is numbered by position, so seq stays
// unique per account.
func distinctSeqs(raw []models.RawEvent) bool {
	seen := make(map[int]struct{}, len(raw))
	for _, r := range raw {
		if r.Seq <= 0 {
			return false
		}
		if _, dup := seen[r.Seq]; dup {
			return false
		}
		seen[r.Seq] = struct{}{}
	}
	return true
}

func validate(r models.RawEvent, seq int) (models.SubscriptionEvent, Defect, bool) {
	account := strings.TrimSpace(r.AccountID)
	defect := Defect{Seq: seq, AccountID: account}

	if account == "" {
		defect.Reason = ReasonMissingAccount
		return models.SubscriptionEvent{}, defect, false
	}
	if r.Timestamp == nil || r.Timestamp.IsZero() {
		defect.Reason = ReasonMissingTime
		return models.SubscriptionEvent{}, defect, false
	}
	status, err := models.ParseStatus(r.Status)
	if err != nil {
		defect.Reason = ReasonUnknownStatus
		defect.Detail = r.Status
		return models.SubscriptionEvent{}, defect, false
	}
	plan := strings.ToLower(strings.TrimSpace(r.PlanID))
	if plan == "" {
		defect.Reason = ReasonMissingPlan
		return models.SubscriptionEvent{}, defect, false
	}

	if r.InvalidEndDate != "" {
		defect.Reason = ReasonInvalidEndDate
		defect.Detail = r.InvalidEndDate
		return models.SubscriptionEvent{}, defect, false
	}

	var end *time.Time
	if r.EndDate != nil && !r.EndDate.IsZero() {
		d := models.Day(*r.EndDate)
		end = &d
	}

	return models.SubscriptionEvent{
		AccountID: account,
		Timestamp: r.Timestamp.UTC(),
		PlanID:    plan,
		Status:    status,
		EndDate:   end,
		Seq:       seq,
	}, Defect{}, true
}
