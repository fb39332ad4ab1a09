package quality

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const suiteYAML = `
name: post_load
expectations:
  - kind: row_count
    relation: facts
    min: 1
  - kind: row_count
    relation: facts
    min: 1
    max: 2
  - kind: no_nulls
    relation: facts
    columns: [id, status]
  - kind: unique
    relation: facts
    columns: [id]
  - kind: referential_integrity
    relation: facts
    columns: [account_id]
    ref_relation: accounts
    ref_columns: [account_id]
  - kind: freshness
    relation: facts
    column: loaded_at
    max_age: 24h
  - kind: values_in_set
    relation: facts
    column: status
    allowed: [active, trial]
  - kind: value_range
    relation: facts
    column: mrr
    lower: "0"
  - kind: not_before
    relation: facts
    earlier: start_date
    later: end_date
  - kind: null_rate
    relation: facts
    columns: [end_date]
    max_rate: 0.5
`

func TestLoadSuiteSpec(t *testing.T) {
	spec, err := LoadSuiteSpec(strings.NewReader(suiteYAML))
	require.NoError(t, err)
	assert.Equal(t, "post_load", spec.Name)
	require.Len(t, spec.Expectations, 10)

	now := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	src := MemorySource{
		"accounts": {Columns: []string{"account_id"}, Rows: [][]any{{"a1"}}},
		"facts": {
			Columns: []string{"id", "account_id", "status", "mrr", "loaded_at", "start_date", "end_date"},
			Rows: [][]any{
				{int64(1), "a1", "active", "29", now.Add(-time.Hour), "2024-01-01", nil},
				{int64(2), "a1", "trial", "0", now.Add(-time.Hour), "2024-01-01", "2024-01-15"},
				{int64(3), "a1", "active", "29", now.Add(-time.Hour), "2024-01-01", "2024-12-31"},
			},
		},
	}

	report := spec.Build(src, WithClock(func() time.Time { return now })).Run(context.Background())

	require.Equal(t, 10, report.Total())
	assert.Equal(t, 1, report.Failed(), report.Summary())
	assert.Equal(t, KindRowCount, report.Failures()[0].Kind)
	assert.Contains(t, report.Failures()[0].Detail, "over by 1")
}

func TestLoadSuiteSpec_Rejects(t *testing.T) {
	tests := map[string]string{
		"no name":          "expectations:\n  - kind: row_count\n    relation: t\n    min: 1\n",
		"no expectations":  "name: x\n",
		"unknown kind":     "name: x\nexpectations:\n  - kind: vibes\n    relation: t\n",
		"unknown field":    "name: x\nexpectations:\n  - kind: row_count\n    relation: t\n    min: 1\n    floor: 2\n",
		"missing min":      "name: x\nexpectations:\n  - kind: row_count\n    relation: t\n",
		"missing relation": "name: x\nexpectations:\n  - kind: row_count\n    min: 1\n",
		"bad max_age":      "name: x\nexpectations:\n  - kind: freshness\n    relation: t\n    column: c\n    max_age: soon\n",
		"ref mismatch":     "name: x\nexpectations:\n  - kind: referential_integrity\n    relation: t\n    columns: [a, b]\n    ref_relation: r\n    ref_columns: [a]\n",
		"bad rate":         "name: x\nexpectations:\n  - kind: null_rate\n    relation: t\n    columns: [a]\n    max_rate: 2\n",
		"bad lower":        "name: x\nexpectations:\n  - kind: value_range\n    relation: t\n    column: a\n    lower: low\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadSuiteSpec(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadSuiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(suiteYAML), 0o600))

	spec, err := LoadSuiteFile(path)
	require.NoError(t, err)
	assert.Len(t, spec.Expectations, 10)

	_, err = LoadSuiteFile(filepath.Join(t.TempDir(), "none.yaml"))
	assert.Error(t, err)
}
