// Package repository stores flattened citations in PostgreSQL.
//
// # Overview
//
// PgCitationRepository owns the SQL for the citations table. PgSink adapts it
// to the sink.Sink contract used by the ingest pipeline: a load run is one
// transaction, each row is written under its own savepoint so a rejected row
// does not poison the rows around it, and the transaction commits only when
// the whole document has been read.
//
// # Concurrency
//
// Two loaders writing the same database serialize on a transaction-scoped
// advisory lock taken when a session begins. The lock is released on commit
// or rollback.
//
// # Transactions
//
// Repositories accept DBTX so the same queries run against the pool (reads,
// tests) and against a pgx.Tx or savepoint inside a load session:
//
//	db, _ := database.New(ctx, cfg, logger)
//	s := repository.NewPgSink(db, logger)
//	p := ingest.New(s, logger)
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/medline-loader/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// TxBeginner starts transactions. *database.DB, *pgxpool.Pool and pgx.Tx
// (which nests as a savepoint) all satisfy it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgreSQL error codes the sink reports distinctly.
const (
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
	pgNotNullViolation    = "23502"
	pgStringDataTruncated = "22001"
)

// pgErrorCode returns the SQLSTATE of a PostgreSQL error, or "".
func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// isRowRejection reports whether the database refused a single row because of
// its content, as opposed to a connection or transaction failure.
func isRowRejection(err error) bool {
	switch pgErrorCode(err) {
	case pgUniqueViolation, pgCheckViolation, pgNotNullViolation, pgStringDataTruncated:
		return true
	}
	return false
}
