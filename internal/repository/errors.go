package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/campuschat/internal/storage"
)

// Re-exported so callers can match repository errors without importing storage.
var (
	ErrNotFound = storage.ErrNotFound
	ErrConflict = storage.ErrConflict
)

const pgUniqueViolation = "23505"

// classify maps driver errors onto the storage sentinels and leaves the rest untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return errors.Join(ErrConflict, err)
	}
	return err
}

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}
