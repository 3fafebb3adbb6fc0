package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// IsUniqueViolation reports whether err is a unique constraint violation from
// Postgres or sqlite. When constraintName is provided, untranslated driver
// errors must also mention it; gorm's translated sentinel carries no name.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

// IsNotFound reports whether err is gorm's record-not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// SupportsRowLocks reports whether the connection's dialect understands
// SELECT ... FOR UPDATE.
func SupportsRowLocks(conn *gorm.DB) bool {
	if conn == nil || conn.Dialector == nil {
		return false
	}
	return conn.Dialector.Name() == "postgres"
}
