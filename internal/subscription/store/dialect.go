package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavour the loader and migrations speak.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DialectForDriver maps a database/sql driver name to its dialect.
func DialectForDriver(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported driver %q", driver)
	}
}

// placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// placeholders returns count parameters starting at n, comma separated.
func (d Dialect) placeholders(n, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = d.placeholder(n + i)
	}
	return strings.Join(parts, ", ")
}
