// Package database opens the warehouse connection for either supported driver.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"subsnap/internal/platform/config"
)

// sqlitePragmas are applied to every SQLite connection. Foreign keys are off by
// default in SQLite and the fact table relies on them.
var sqlitePragmas = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
}

// Open connects using cfg and verifies the connection with a ping.
func Open(ctx context.Context, cfg config.Database) (*sql.DB, error) {
	dsn := cfg.URL
	if cfg.Driver == config.DriverSQLite {
		dsn = SQLiteDSN(dsn)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", cfg.Driver, err)
	}
	return db, nil
}

// OpenSQLite opens a SQLite file at path with the standard pragmas.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	return Open(ctx, config.Database{Driver: config.DriverSQLite, URL: path})
}

// SQLiteDSN adds the standard pragmas to a path or file: URI unless the caller
// already set pragmas.
func SQLiteDSN(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(sqlitePragmas, "&")
}
