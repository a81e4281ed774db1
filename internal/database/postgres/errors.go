package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/dbspec/internal/errs"
)

// PostgreSQL SQLSTATE codes with a dedicated error kind.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrInsufficientPrivilege = "42501"
	pgErrDuplicateTable        = "42P07"
	pgErrDuplicateObject       = "42710"
	pgErrDuplicateFunction     = "42723"
	pgErrDuplicateSchema       = "42P06"
	pgErrQueryCanceled         = "57014"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
// A nil err maps to a nil error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// No rows
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg = fmt.Sprintf("%s: %s", msg, pgErr.Message)
		switch {
		case pgErr.Code == pgErrInsufficientPrivilege:
			return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
		case pgErr.Code == pgErrDuplicateTable, pgErr.Code == pgErrDuplicateObject,
			pgErr.Code == pgErrDuplicateFunction, pgErr.Code == pgErrDuplicateSchema:
			return errs.Wrap(errs.ErrKindDuplicateObject, msg, err)
		case pgErr.Code == pgErrQueryCanceled:
			return errs.Wrap(errs.ErrKindTimeout, msg, err)
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			// Class 08: connection exceptions
			return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "28":
			// Class 28: invalid authorization
			return errs.Wrap(errs.ErrKindPermissionDenied, msg, err)
		}
		return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}
