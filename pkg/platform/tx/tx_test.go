package tx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestWithTx_NilLeavesContextUntouched(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithTx(ctx, nil))

	_, ok := From(ctx)
	assert.False(t, ok)
}

func TestExecutorFrom(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	assert.Equal(t, Executor(db), ExecutorFrom(ctx, db))

	sqlTx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer func() { _ = sqlTx.Rollback() }()

	txCtx := WithTx(ctx, sqlTx)
	got, ok := From(txCtx)
	require.True(t, ok)
	assert.Same(t, sqlTx, got)
	assert.Equal(t, Executor(sqlTx), ExecutorFrom(txCtx, db))
}

func TestRun(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE runs (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)

	count := func() int {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n))
		return n
	}

	t.Run("commits on success", func(t *testing.T) {
		err := Run(ctx, db, func(ctx context.Context) error {
			_, ok := From(ctx)
			assert.True(t, ok)
			_, err := ExecutorFrom(ctx, db).ExecContext(ctx, `INSERT INTO runs (id) VALUES ('a')`)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := Run(ctx, db, func(ctx context.Context) error {
			_, err := ExecutorFrom(ctx, db).ExecContext(ctx, `INSERT INTO runs (id) VALUES ('b')`)
			require.NoError(t, err)
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, count())
	})

	t.Run("nested calls join the outer transaction", func(t *testing.T) {
		err := Run(ctx, db, func(outer context.Context) error {
			outerTx, _ := From(outer)
			return Run(outer, db, func(inner context.Context) error {
				innerTx, _ := From(inner)
				assert.Same(t, outerTx, innerTx)
				return nil
			})
		})
		require.NoError(t, err)
	})
}
