// Package pg implements the auth and inventory stores on PostgreSQL through database/sql.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"tt360.co/crm/internal/errs"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrCheckViolation      = "23514"
)

type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// FromPool exposes a pgx pool through database/sql.
func FromPool(pool *pgxpool.Pool) *Store {
	return New(stdlib.OpenDBFromPool(pool))
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// Ping backs the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	return s.db.PingContext(ctx)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// classify maps driver errors onto errs kinds. what names the record for messages.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.NotFound("%s not found", what)
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return errs.Wrap(errs.KindDuplicate, err, what+" already exists")
		case pgErrForeignKeyViolation:
			return errs.Wrap(errs.KindDuplicate, err, what+" is referenced by other records")
		case pgErrCheckViolation:
			return errs.Wrap(errs.KindBadRequest, err, what+" violates a data constraint")
		}
	}
	return err
}

// expectOne turns a zero-row update or delete into NotFound.
func expectOne(res sql.Result, err error, what string) error {
	if err != nil {
		return classify(err, what)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.NotFound("%s not found", what)
	}
	return nil
}

func label(kind string, id int64) string {
	return fmt.Sprintf("%s %d", kind, id)
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
