package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const (
	pgUniqueViolation   = "23505"
	pgLockNotAvailable  = "55P03"
	pgQueryCanceled     = "57014"
	sqliteUniqueMessage = "UNIQUE constraint failed"
)

// IsUniqueViolation reports whether the provided error references a unique
// violation. When names are provided, the violated constraint (or, for
// sqlite, the table.column list) must match one of them.
func IsUniqueViolation(err error, names ...string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return matchesAny(names, func(name string) bool {
			return pgErr.ConstraintName == name || strings.Contains(pgErr.Message, name)
		})
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		return matchesAny(names, func(name string) bool {
			return pqErr.Constraint == name || strings.Contains(pqErr.Message, name)
		})
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.ExtendedCode != sqlite3.ErrConstraintUnique && liteErr.ExtendedCode != sqlite3.ErrConstraintPrimaryKey {
			return false
		}
		msg := liteErr.Error()
		return matchesAny(names, func(name string) bool { return strings.Contains(msg, name) })
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, sqliteUniqueMessage) {
		return false
	}
	return matchesAny(names, func(name string) bool { return strings.Contains(msg, name) })
}

func matchesAny(names []string, match func(string) bool) bool {
	named := false
	for _, name := range names {
		if name == "" {
			continue
		}
		named = true
		if match(name) {
			return true
		}
	}
	return !named
}

// IsLockTimeout reports whether a statement gave up waiting on a row lock.
func IsLockTimeout(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgLockNotAvailable || pgErr.Code == pgQueryCanceled
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgLockNotAvailable
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return strings.Contains(err.Error(), "lock timeout") || strings.Contains(err.Error(), "database is locked")
}
