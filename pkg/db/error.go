package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// IsDuplicateKeyErr reports whether err is a unique constraint violation,
// across the supported dialects.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	if hasPGCode(err, "23505") {
		return true
	}

	// PostgreSQL without a structured error
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsLockContentionErr reports whether err is a transient lock wait timeout,
// deadlock or serialization failure that a bounded retry may clear.
func IsLockContentionErr(err error) bool {
	if err == nil {
		return false
	}

	// PostgreSQL: lock_not_available, serialization_failure, deadlock_detected
	if hasPGCode(err, "55P03") || hasPGCode(err, "40001") || hasPGCode(err, "40P01") {
		return true
	}

	// MySQL: lock wait timeout (1205), deadlock (1213)
	msg := err.Error()
	if strings.Contains(msg, "Error 1205") || strings.Contains(msg, "Error 1213") {
		return true
	}

	// SQLite
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") {
		return true
	}

	return false
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
