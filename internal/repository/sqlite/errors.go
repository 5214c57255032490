package sqlite

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// Error handling and scan utilities for SQLite.

// isUniqueViolation checks if an error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed: UNIQUE")
}

// isNoRows checks if an error indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// boolToInt converts a boolean to an integer (SQLite has no native boolean).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// formatTime renders a timestamp for storage. All timestamps are stored as
// RFC 3339 UTC strings so lexicographic SQL comparison matches time order.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a stored timestamp.
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
