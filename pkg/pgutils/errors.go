package pgutils

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeUndefinedTable      = "42P01"
	CodeQueryCanceled       = "57014"
)

// IsUniqueViolation reports a unique constraint violation (23505).
func IsUniqueViolation(err error) bool {
	return hasCode(err, CodeUniqueViolation)
}

// IsForeignKeyViolation reports a foreign key violation (23503).
func IsForeignKeyViolation(err error) bool {
	return hasCode(err, CodeForeignKeyViolation)
}

// IsUndefinedTable reports a missing relation (42P01), e.g. before migrations ran.
func IsUndefinedTable(err error) bool {
	return hasCode(err, CodeUndefinedTable)
}

// IsQueryCanceled reports statement_timeout or a cancel request (57014).
func IsQueryCanceled(err error) bool {
	return hasCode(err, CodeQueryCanceled)
}

func hasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	// database/sql wrappers sometimes flatten the error to text
	return strings.Contains(err.Error(), "SQLSTATE "+code)
}
