// Package postgres implements the service repositories on database/sql
// with the lib/pq driver. Queries use $n placeholders; sql.ErrNoRows maps
// to each service's ErrNotFound.
package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
