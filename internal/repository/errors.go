package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrOpenVisitExists reports that the one-open-visit index rejected a write.
	ErrOpenVisitExists = errors.New("entity already has an open visit")
	// ErrDuplicatePurpose reports a case-insensitive purpose name collision.
	ErrDuplicatePurpose = errors.New("purpose name already exists")
)

const (
	constraintOpenVisit   = "uq_visit_records_open"
	constraintOpenWalkIn  = "uq_walkin_visits_open"
	constraintPurposeName = "uq_purposes_active_name"
	pqUniqueViolation     = "23505"
)

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == pqUniqueViolation && pqErr.Constraint == constraint
}

func checkAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
