package quality

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Expectation kinds, as reported on each CheckResult.
const (
	KindRowCount             = "row_count"
	KindNoNulls              = "no_nulls"
	KindNullRate             = "null_rate"
	KindUnique               = "unique"
	KindReferentialIntegrity = "referential_integrity"
	KindFreshness            = "freshness"
	KindValuesInSet          = "values_in_set"
	KindValueRange           = "value_range"
	KindNotBefore            = "not_before"
)

// maxListed caps how many offending values a detail string names.
const maxListed = 5

// expectation is an immutable check descriptor. evaluate reports the outcome;
// an error means the check could not run at all.
type expectation interface {
	kind() string
	relation() string
	name() string
	evaluate(ctx context.Context, src Source, now time.Time) (passed bool, detail string, err error)
}

type rowCount struct {
	rel      string
	min, max int64
	bounded  bool
}

func (e rowCount) kind() string     { return KindRowCount }
func (e rowCount) relation() string { return e.rel }
func (e rowCount) name() string {
	if e.bounded {
		return fmt.Sprintf("row_count between %d and %d", e.min, e.max)
	}
	return fmt.Sprintf("row_count >= %d", e.min)
}

func (e rowCount) evaluate(ctx context.Context, src Source, _ time.Time) (bool, string, error) {
	n, err := src.Count(ctx, e.rel)
	if err != nil {
		return false, "", err
	}
	switch {
	case n < e.min:
		return false, fmt.Sprintf("found %d rows, expected at least %d (short by %d)", n, e.min, e.min-n), nil
	case e.bounded && n > e.max:
		return false, fmt.Sprintf("found %d rows, expected at most %d (over by %d)", n, e.max, n-e.max), nil
	case e.bounded:
		return true, fmt.Sprintf("found %d rows, expected between %d and %d", n, e.min, e.max), nil
	default:
		return true, fmt.Sprintf("found %d rows, expected at least %d", n, e.min), nil
	}
}

// nullCounts scans columns and counts nulls in each.
func nullCounts(ctx context.Context, src Source, rel string, cols []string) ([]int64, int64, error) {
	counts := make([]int64, len(cols))
	var total int64
	err := src.Scan(ctx, rel, cols, func(row []any) error {
		total++
		for i, v := range row {
			if v == nil {
				counts[i]++
			}
		}
		return nil
	})
	return counts, total, err
}

type noNulls struct {
	rel  string
	cols []string
}

func (e noNulls) kind() string     { return KindNoNulls }
func (e noNulls) relation() string { return e.rel }
func (e noNulls) name() string     { return "no_nulls(" + strings.Join(e.cols, ", ") + ")" }

func (e noNulls) evaluate(ctx context.Context, src Source, _ time.Time) (bool, string, error) {
	counts, total, err := nullCounts(ctx, src, e.rel, e.cols)
	if err != nil {
		return false, "", err
	}
	var offending []string
	for i, n := range counts {
		if n > 0 {
			offending = append(offending, fmt.Sprintf("%s (%d)", e.cols[i], n))
		}
	}
	if len(offending) > 0 {
		return false, "null values in " + strings.Join(offending, ", "), nil
	}
	return true, fmt.Sprintf("no nulls in %d column(s) across %d rows", len(e.cols), total), nil
}

type nullRate struct {
	rel     string
	cols    []string
	maxRate float64
}

func (e nullRate) kind() string     { return KindNullRate }
func (e nullRate) relation() string { return e.rel }
func (e nullRate) name() string {
	return fmt.Sprintf("null_rate(%s) <= %.2f%%", strings.Join(e.cols, ", "), e.maxRate*100)
}

func (e nullRate) evaluate(ctx context.Context, src Source, _ time.Time) (bool, string, error) {
	counts, total, err := nullCounts(ctx, src, e.rel, e.cols)
	if err != nil {
		return false, "", err
	}
	if total == 0 {
		return true, "relation is empty", nil
	}
	var over []string
	for i, n := range counts {
		rate := float64(n) / float64(total)
		if rate > e.maxRate {
			over = append(over, fmt.Sprintf("%s %.2f%%", e.cols[i], rate*100))
		}
	}
	if len(over) > 0 {
		return false, fmt.Sprintf("null rate above %.2f%%: %s", e.maxRate*100, strings.Join(over, ", ")), nil
	}
	return true, fmt.Sprintf("null rates within %.2f%% across %d rows", e.maxRate*100, total), nil
}

type unique struct {
	rel  string
	cols []string
}

func (e unique) kind() string     { return KindUnique }
func (e unique) relation() string { return e.rel }
func (e unique) name() string     { return "unique(" + strings.Join(e.cols, ", ") + ")" }

func (e unique) evaluate(ctx context.Context, src Source, _ time.Time) (bool, string, error) {
	seen := make(map[string]int)
	var total int64
	err := src.Scan(ctx, e.rel, e.cols, func(row []any) error {
		total++
		seen[key(row)]++
		return nil
	})
	if err != nil {
		return false, "", err
	}
	var groups, extra int
	for _, n := range seen {
		if n > 1 {
			groups++
			extra += n - 1
		}
	}
	if groups > 0 {
		return false, fmt.Sprintf("%d duplicate key group(s) over (%s), %d extra row(s)",
			groups, strings.Join(e.cols, ", "), extra), nil
	}
	return true, fmt.Sprintf("all %d keys unique over (%s)", total, strings.Join(e.cols, ", ")), nil
}

type referential struct {
	rel     string
	cols    []string
	refRel  string
	refCols []string
}

func (e referential) kind() string     { return KindReferentialIntegrity }
func (e referential) relation() string { return e.rel }
func (e referential) name() string {
	return fmt.Sprintf("(%s) references %s(%s)", strings.Join(e.cols, ", "), e.refRel, strings.Join(e.refCols, ", "))
}

// evaluate counts distinct child keys missing from the parent. Child rows with a
// null in the key are not checked.
func (e referential) evaluate(ctx context.Context, src Source, _ time.Time) (bool, string, error) {
	if len(e.cols) != len(e.refCols) || len(e.cols) == 0 {
		return false, "", fmt.Errorf("referential check needs matching column lists, got %d and %d", len(e.cols), len(e.refCols))
	}
	parents := make(map[string]struct{})
	err := src.Scan(ctx, e.refRel, e.refCols, func(row []any) error {
		if !hasNull(row) {
			parents[key(row)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return false, "", err
	}

	orphans := make(map[string]struct{})
	labels := make(map[string]struct{})
	err = src.Scan(ctx, e.rel, e.cols, func(row []any) error {
		if hasNull(row) {
			return nil
		}
		k := key(row)
		if _, ok := parents[k]; !ok {
			orphans[k] = struct{}{}
			labels[label(row)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return false, "", err
	}

	target := fmt.Sprintf("%s(%s)", e.refRel, strings.Join(e.refCols, ", "))
	if len(orphans) > 0 {
		return false, fmt.Sprintf("%d orphaned value(s) missing from %s: %s",
			len(orphans), target, listSample(labels)), nil
	}
	return true, "every value present in " + target, nil
}

type freshness struct {
	rel    string
	col    string
	maxAge time.Duration
}

func (e freshness) kind() string     { return KindFreshness }
func (e freshness) relation() string { return e.rel }
func (e freshness) name() string     { return fmt.Sprintf("freshness(%s) <= %s", e.col, e.maxAge) }

func (e freshness) evaluate(ctx context.Context, src Source, now time.Time) (bool, string, error) {
	var (
		latest time.Time
		found  bool
	)
	err := src.Scan(ctx, e.rel, []string{e.col}, func(row []any) error {
		if row[0] == nil {
			return nil
		}
		t, err := asTime(row[0])
		if err != nil {
			return fmt.Errorf("column %s: %w", e.col, err)
		}
		if !found || t.After(latest) {
			latest, found = t, true
		}
		return nil
	})
	if err != nil {
		return false, "", err
	}
	if !found {
		return false, fmt.Sprintf("no %s values to measure freshness", e.col), nil
	}
	age := now.Sub(latest).Truncate(time.Second)
	if age > e.maxAge {
		return false, fmt.Sprintf("latest %s is %s old, max %s (stale by %s)", e.col, age, e.maxAge, age-e.maxAge), nil
	}
	return true, fmt.Sprintf("latest %s is %s old, max %s", e.col, age, e.maxAge), nil
}

type valuesInSet struct {
	rel     string
	col     string
	allowed []string
}

func (e valuesInSet) kind() string     { return KindValuesInSet }
func (e valuesInSet) relation() string { return e.rel }
func (e valuesInSet) name() string {
	return fmt.Sprintf("%s in {%s}", e.col, strings.Join(e.allowed, ", "))
}

func (e valuesInSet) evaluate(ctx context.Context, src Source, _ time.Time) (bool, string, error) {
	allowed := make(map[string]struct{}, len(e.allowed))
	for _, v := range e.allowed {
		allowed[v] = struct{}{}
	}
	var bad int64
	seen := make(map[string]struct{})
	err := src.Scan(ctx, e.rel, []string{e.col}, func(row []any) error {
		if row[0] == nil {
			return nil
		}
		v := render(row[0])
		if _, ok := allowed[v]; !ok {
			bad++
			seen[v] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return false, "", err
	}
	if bad > 0 {
		return false, fmt.Sprintf("%d row(s) with %s outside the allowed set: %s", bad, e.col, listSample(seen)), nil
	}
	return true, fmt.Sprintf("every %s within the allowed set", e.col), nil
}

type valueRange struct {
	rel          string
	col          string
	lower, upper *decimal.Decimal
}

func (e valueRange) kind() string     { return KindValueRange }
func (e valueRange) relation() string { return e.rel }
func (e valueRange) name() string {
	lower, upper := "-inf", "+inf"
	if e.lower != nil {
		lower = e.lower.String()
	}
	if e.upper != nil {
		upper = e.upper.String()
	}
	return fmt.Sprintf("%s in [%s, %s]", e.col, lower, upper)
}

func (e valueRange) evaluate(ctx context.Context, src Source, _ time.Time) (bool, string, error) {
	var below, above int64
	err := src.Scan(ctx, e.rel, []string{e.col}, func(row []any) error {
		if row[0] == nil {
			return nil
		}
		v, err := asDecimal(row[0])
		if err != nil {
			return fmt.Errorf("column %s: %w", e.col, err)
		}
		if e.lower != nil && v.LessThan(*e.lower) {
			below++
		}
		if e.upper != nil && v.GreaterThan(*e.upper) {
			above++
		}
		return nil
	})
	if err != nil {
		return false, "", err
	}
	if below+above > 0 {
		return false, fmt.Sprintf("%d row(s) of %s below range, %d above", below, e.col, above), nil
	}
	return true, fmt.Sprintf("every %s within range", e.col), nil
}

type notBefore struct {
	rel     string
	earlier string
	later   string
}

func (e notBefore) kind() string     { return KindNotBefore }
func (e notBefore) relation() string { return e.rel }
func (e notBefore) name() string     { return fmt.Sprintf("%s >= %s", e.later, e.earlier) }

// evaluate flags rows whose later column precedes the earlier one. Rows missing
// either value are not checked.
func (e notBefore) evaluate(ctx context.Context, src Source, _ time.Time) (bool, string, error) {
	var bad int64
	err := src.Scan(ctx, e.rel, []string{e.earlier, e.later}, func(row []any) error {
		if hasNull(row) {
			return nil
		}
		start, err := asTime(row[0])
		if err != nil {
			return fmt.Errorf("column %s: %w", e.earlier, err)
		}
		end, err := asTime(row[1])
		if err != nil {
			return fmt.Errorf("column %s: %w", e.later, err)
		}
		if end.Before(start) {
			bad++
		}
		return nil
	})
	if err != nil {
		return false, "", err
	}
	if bad > 0 {
		return false, fmt.Sprintf("%d row(s) where %s is before %s", bad, e.later, e.earlier), nil
	}
	return true, fmt.Sprintf("no %s before %s", e.later, e.earlier), nil
}

// listSample renders up to maxListed values sorted, noting how many were left out.
func listSample(values map[string]struct{}) string {
	list := make([]string, 0, len(values))
	for v := range values {
		list = append(list, v)
	}
	sort.Strings(list)
	if len(list) <= maxListed {
		return strings.Join(list, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(list[:maxListed], ", "), len(list)-maxListed)
}

var errNoColumns = errors.New("at least one column is required")

// invalid is an expectation declared with bad arguments. It always fails with err.
type invalid struct {
	k, rel string
	err    error
}

func (e invalid) kind() string     { return e.k }
func (e invalid) relation() string { return e.rel }
func (e invalid) name() string     { return e.k }

func (e invalid) evaluate(context.Context, Source, time.Time) (bool, string, error) {
	return false, "", e.err
}
