package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrMigrationRequired is returned when the tree tables do not exist
	ErrMigrationRequired = errors.New("content tree tables do not exist - migration required")
	// ErrConflict is returned when a write violates a constraint
	ErrConflict = errors.New("content tree constraint violated")
)

// Error handling helper
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w in %s: duplicate %s", ErrConflict, operation, pgErr.ConstraintName)
		case "23502": // not_null_violation
			return fmt.Errorf("%w in %s: required field %s is missing", ErrConflict, operation, pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("%s: %w", operation, ErrMigrationRequired)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}
