package quality

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"subsnap/pkg/platform/sentinel"
)

// Source gives expectations read-only access to named relations.
type Source interface {
	// Count returns the number of rows in relation.
	Count(ctx context.Context, relation string) (int64, error)
	// Scan calls fn once per row with the requested columns, in order. fn must
	// not retain row.
	Scan(ctx context.Context, relation string, columns []string, fn func(row []any) error) error
}

// SQLSource reads relations from a database/sql connection.
type SQLSource struct {
	db *sql.DB
}

func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

// quoteRelation quotes each dot-separated part, so "analytics.fact" stays
// schema-qualified.
func quoteRelation(relation string) string {
	parts := strings.Split(relation, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func (s *SQLSource) Count(ctx context.Context, relation string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteRelation(relation)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", relation, err)
	}
	return n, nil
}

func (s *SQLSource) Scan(ctx context.Context, relation string, columns []string, fn func(row []any) error) error {
	if len(columns) == 0 {
		return fmt.Errorf("scan %s: no columns requested", relation)
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	query := "SELECT " + strings.Join(quoted, ", ") + " FROM " + quoteRelation(relation)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("scan %s: %w", relation, err)
	}
	defer rows.Close()

	vals := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scan %s: %w", relation, err)
		}
		if err := fn(vals); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("scan %s: %w", relation, err)
	}
	return nil
}

// Relation is an in-memory table.
type Relation struct {
	Columns []string
	Rows    [][]any
}

// MemorySource serves relations held in memory. It is not safe for concurrent
// writes; build it fully before running a suite.
type MemorySource map[string]Relation

func (m MemorySource) relation(name string) (Relation, error) {
	rel, ok := m[name]
	if !ok {
		return Relation{}, fmt.Errorf("relation %s: %w", name, sentinel.ErrNotFound)
	}
	return rel, nil
}

func (m MemorySource) Count(_ context.Context, relation string) (int64, error) {
	rel, err := m.relation(relation)
	if err != nil {
		return 0, err
	}
	return int64(len(rel.Rows)), nil
}

func (m MemorySource) Scan(ctx context.Context, relation string, columns []string, fn func(row []any) error) error {
	rel, err := m.relation(relation)
	if err != nil {
		return err
	}
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = -1
		for j, have := range rel.Columns {
			if have == c {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return fmt.Errorf("relation %s has no column %s", relation, c)
		}
	}

	out := make([]any, len(columns))
	for _, row := range rel.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, j := range idx {
			if j < len(row) {
				out[i] = row[j]
			} else {
				out[i] = nil
			}
		}
		if err := fn(out); err != nil {
			return err
		}
	}
	return nil
}
