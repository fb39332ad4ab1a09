package quality

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Drivers disagree on how values come back (Postgres returns time.Time for a
// date, SQLite a string; text may arrive as []byte), so comparisons go through
// these helpers.

// render renders a non-null value in a driver-neutral form.
func render(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		if x.Equal(x.Truncate(24 * time.Hour)) {
			return x.UTC().Format("2006-01-02")
		}
		return x.UTC().Format(time.RFC3339Nano)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// key encodes a row as one comparable string. Each value is written as "~" for
// null or "=<len>:<text>", so no two distinct rows share a key.
func key(row []any) string {
	var b strings.Builder
	for _, v := range row {
		if v == nil {
			b.WriteByte('~')
			continue
		}
		r := render(v)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(len(r)))
		b.WriteByte(':')
		b.WriteString(r)
	}
	return b.String()
}

// label renders a non-null row for report details.
func label(row []any) string {
	if len(row) == 1 {
		return render(row[0])
	}
	parts := make([]string, len(row))
	for i, v := range row {
		parts[i] = render(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func hasNull(row []any) bool {
	for _, v := range row {
		if v == nil {
			return true
		}
	}
	return false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// asTime interprets a timestamp or date column value. Integers are Unix seconds.
func asTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case int64:
		return time.Unix(x, 0).UTC(), nil
	case []byte:
		return asTime(string(x))
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised time %q", x)
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", v)
	}
}

// asDecimal interprets a numeric column value.
func asDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case int64:
		return decimal.NewFromInt(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case decimal.Decimal:
		return x, nil
	case []byte:
		return decimal.NewFromString(string(x))
	case string:
		return decimal.NewFromString(strings.TrimSpace(x))
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported numeric value %T", v)
	}
}
