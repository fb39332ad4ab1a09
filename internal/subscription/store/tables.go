package store

import (
	"fmt"
	"strconv"
	"time"

	"subsnap/internal/subscription/models"
)

// column is a target column and the Postgres type its text value is cast to.
type column struct {
	name   string
	pgType string
}

// table describes an upsert target. key columns form the conflict target; every
// other column is overwritten on conflict.
type table struct {
	name    string
	columns []column
	key     []string
}

func (t table) isKey(name string) bool {
	for _, k := range t.key {
		if k == name {
			return true
		}
	}
	return false
}

var (
	dimDate = table{
		name: "dim_date",
		columns: []column{
			{"date_key", "integer"}, {"full_date", "date"}, {"year", "integer"},
			{"month", "integer"}, {"day", "integer"}, {"day_of_week", "integer"},
		},
		key: []string{"date_key"},
	}
	dimPlan = table{
		name: "dim_plan",
		columns: []column{
			{"plan_id", "text"}, {"name", "text"}, {"tier", "integer"},
			{"list_price", "numeric"}, {"billing_interval", "text"},
		},
		key: []string{"plan_id"},
	}
	dimAccount = table{
		name:    "dim_account",
		columns: []column{{"account_id", "text"}, {"signup_date", "date"}},
		key:     []string{"account_id"},
	}
	stagedEvents = table{
		name: "subscription_events",
		columns: []column{
			{"account_id", "text"}, {"seq", "integer"}, {"event_ts", "timestamptz"},
			{"start_date", "date"}, {"plan_id", "text"}, {"status", "text"},
			{"end_date", "date"}, {"run_id", "text"},
		},
		key: []string{"account_id", "seq"},
	}
	factDaily = table{
		name: "fact_subscription_daily",
		columns: []column{
			{"date_key", "integer"}, {"account_id", "text"}, {"full_date", "date"},
			{"plan_id", "text"}, {"plan_tier", "integer"}, {"status", "text"},
			{"signup_date", "date"}, {"mrr", "numeric"}, {"arr", "numeric"},
			{"active_users", "bigint"}, {"event_count", "bigint"},
			{"is_new_subscription", "boolean"}, {"is_churned", "boolean"},
			{"is_expansion", "boolean"}, {"is_contraction", "boolean"},
			{"days_since_signup", "integer"}, {"days_on_current_plan", "integer"},
			{"run_id", "text"}, {"loaded_at", "timestamptz"},
		},
		key: []string{"date_key", "account_id"},
	}
)

// Row values are kept in one canonical form for both dialects: integers, bools,
// strings and nil. Dates are YYYY-MM-DD, instants fixed-width RFC 3339 in UTC so
// text columns sort chronologically, and money the decimal's fixed string.

const instantLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatDate(t time.Time) string {
	return models.Day(t).Format(models.DateLayout)
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(instantLayout)
}

func dateRow(day time.Time) []any {
	day = models.Day(day)
	return []any{
		models.DateKey(day), formatDate(day), day.Year(),
		int(day.Month()), day.Day(), int(day.Weekday()),
	}
}

func planRow(p models.Plan) []any {
	return []any{p.ID, p.Name, p.Tier, p.ListPrice.StringFixed(4), string(p.Interval)}
}

func accountRow(a Account) []any {
	return []any{a.ID, formatDate(a.SignupDate)}
}

func eventRow(e models.SubscriptionEvent, runID string) []any {
	var end any
	if e.EndDate != nil {
		end = formatDate(*e.EndDate)
	}
	return []any{
		e.AccountID, e.Seq, formatInstant(e.Timestamp), formatDate(e.Timestamp),
		e.PlanID, string(e.Status), end, runID,
	}
}

func factRow(r models.DailySnapshot, runID string, loadedAt time.Time) []any {
	return []any{
		r.DateKey(), r.AccountID, formatDate(r.Date),
		r.PlanID, r.PlanTier, string(r.Status),
		formatDate(r.SignupDate), r.MRR.StringFixed(4), r.ARR.StringFixed(4),
		r.ActiveUsers, r.EventCount,
		r.IsNewSubscription, r.IsChurned,
		r.IsExpansion, r.IsContraction,
		r.DaysSinceSignup, r.DaysOnCurrentPlan,
		runID, formatInstant(loadedAt),
	}
}

// textValue renders a canonical value for a Postgres text[] parameter.
func textValue(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return fmt.Sprint(x), true
	}
}
