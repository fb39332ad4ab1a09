package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"subsnap/pkg/platform/tx"
)

// sqliteMaxParams stays under SQLite's default bind-variable ceiling.
const sqliteMaxParams = 30000

// upsert writes rows into t, overwriting every non-key column on conflict.
func (d Dialect) upsert(ctx context.Context, exec tx.Executor, t table, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	if d == Postgres {
		return upsertUnnest(ctx, exec, t, rows)
	}
	perChunk := sqliteMaxParams / len(t.columns)
	for start := 0; start < len(rows); start += perChunk {
		end := min(start+perChunk, len(rows))
		if err := upsertValues(ctx, exec, t, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func conflictClause(t table) string {
	sets := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		if !t.isKey(c.name) {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c.name, c.name))
		}
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(t.key, ", "), strings.Join(sets, ", "))
}

func columnNames(t table) string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
	}
	return strings.Join(names, ", ")
}

// upsertUnnest sends one text[] per column and casts inside the statement, so a
// batch of any size is a single round trip.
func upsertUnnest(ctx context.Context, exec tx.Executor, t table, rows [][]any) error {
	arrays := make([][]sql.NullString, len(t.columns))
	for i := range arrays {
		arrays[i] = make([]sql.NullString, len(rows))
	}
	for r, row := range rows {
		for c, v := range row {
			s, ok := textValue(v)
			arrays[c][r] = sql.NullString{String: s, Valid: ok}
		}
	}

	params := make([]string, len(t.columns))
	casts := make([]string, len(t.columns))
	args := make([]any, len(t.columns))
	for i, c := range t.columns {
		params[i] = fmt.Sprintf("$%d::text[]", i+1)
		casts[i] = fmt.Sprintf("u.%s::%s", c.name, c.pgType)
		args[i] = pq.Array(arrays[i])
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s)
SELECT %s
FROM unnest(%s) AS u(%s)
%s`,
		t.name, columnNames(t),
		strings.Join(casts, ", "),
		strings.Join(params, ", "), columnNames(t),
		conflictClause(t))

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", t.name, err)
	}
	return nil
}

func upsertValues(ctx context.Context, exec tx.Executor, t table, rows [][]any) error {
	width := len(t.columns)
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", width), ", ") + ")"
	tuples := make([]string, len(rows))
	args := make([]any, 0, len(rows)*width)
	for i, row := range rows {
		tuples[i] = tuple
		args = append(args, row...)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s %s",
		t.name, columnNames(t), strings.Join(tuples, ", "), conflictClause(t))

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", t.name, err)
	}
	return nil
}

// deleteStagedEvents removes the staged events of the given accounts.
func (d Dialect) deleteStagedEvents(ctx context.Context, exec tx.Executor, accounts []string) error {
	if len(accounts) == 0 {
		return nil
	}
	if d == Postgres {
		_, err := exec.ExecContext(ctx,
			`DELETE FROM subscription_events WHERE account_id = ANY($1::text[])`, pq.Array(accounts))
		if err != nil {
			return fmt.Errorf("delete staged events: %w", err)
		}
		return nil
	}
	for start := 0; start < len(accounts); start += sqliteMaxParams {
		end := min(start+sqliteMaxParams, len(accounts))
		chunk := accounts[start:end]
		args := make([]any, len(chunk))
		for i, a := range chunk {
			args[i] = a
		}
		query := "DELETE FROM subscription_events WHERE account_id IN (" + d.placeholders(1, len(chunk)) + ")"
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete staged events: %w", err)
		}
	}
	return nil
}
