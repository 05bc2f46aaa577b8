package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/helixir/medline-loader/internal/domain"
	"github.com/helixir/medline-loader/internal/observability"
	"github.com/helixir/medline-loader/internal/sink"
)

// PgSinkName identifies the PostgreSQL sink in logs, metrics and reports.
const PgSinkName = "postgres"

// loadLockKey is the advisory lock serializing concurrent load sessions.
const loadLockKey int64 = 0x4d45444c494e45

// Compile-time interface verification.
var _ sink.Sink = (*PgSink)(nil)

// PgSink writes each load run inside one PostgreSQL transaction.
type PgSink struct {
	db     TxBeginner
	logger zerolog.Logger
}

// NewPgSink creates a sink that opens its transactions on db.
func NewPgSink(db TxBeginner, logger zerolog.Logger) *PgSink {
	return &PgSink{
		db:     db,
		logger: observability.WithComponent(logger, "pg_sink"),
	}
}

// Name implements sink.Sink.
func (s *PgSink) Name() string { return PgSinkName }

// Begin opens the run transaction and waits for the load lock.
func (s *PgSink) Begin(ctx context.Context) (sink.Session, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin load transaction: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, loadLockKey); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("failed to acquire load lock: %w", err)
	}

	return &pgSession{
		tx:     tx,
		logger: observability.LoggerFromContext(ctx, s.logger),
	}, nil
}

type pgSession struct {
	tx     pgx.Tx
	logger zerolog.Logger
	rows   int
	closed bool
	// broken holds the error that left the transaction unusable.
	broken error
}

// Persist upserts one row under a savepoint. A row the database rejects is
// rolled back to the savepoint and the session stays usable.
func (s *pgSession) Persist(ctx context.Context, row *domain.FlatRow) (domain.RowID, error) {
	if s.closed {
		return "", sink.ErrSessionClosed
	}
	if s.broken != nil {
		return "", s.broken
	}

	sp, err := s.tx.Begin(ctx)
	if err != nil {
		return "", s.fail(fmt.Errorf("failed to create savepoint: %w", err))
	}

	id, err := NewPgCitationRepository(sp).Upsert(ctx, row)
	if err != nil {
		if rbErr := sp.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return "", s.fail(fmt.Errorf("%w (savepoint rollback: %v)", err, rbErr))
		}
		if isRowRejection(err) {
			s.logger.Debug().
				Int64("pmid", pmidOf(row)).
				Str("sqlstate", pgErrorCode(err)).
				Msg("row rejected")
		}
		return "", err
	}

	if err := sp.Commit(ctx); err != nil {
		return "", s.fail(fmt.Errorf("failed to release savepoint: %w", err))
	}

	s.rows++
	return domain.RowID(strconv.FormatInt(id, 10)), nil
}

// Commit records the run in load_runs and commits the transaction.
func (s *pgSession) Commit(ctx context.Context) error {
	if s.closed {
		return sink.ErrSessionClosed
	}
	if s.broken != nil {
		return fmt.Errorf("load transaction unusable: %w", s.broken)
	}

	runID, source := observability.RunFromContext(ctx)
	if id, err := uuid.Parse(runID); err == nil {
		if _, err := s.tx.Exec(ctx,
			`INSERT INTO load_runs (run_id, source, rows) VALUES ($1, $2, $3)`,
			id, source, s.rows,
		); err != nil {
			return fmt.Errorf("failed to record load run: %w", err)
		}
	}

	if err := s.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit load transaction: %w", err)
	}
	s.closed = true
	s.logger.Debug().Int("rows", s.rows).Msg("load transaction committed")
	return nil
}

// Rollback aborts the transaction. It does nothing after Commit.
func (s *pgSession) Rollback(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to roll back load transaction: %w", err)
	}
	return nil
}

func (s *pgSession) fail(err error) error {
	s.broken = err
	s.logger.Error().Err(err).Msg("load transaction broken")
	return err
}

func pmidOf(row *domain.FlatRow) int64 {
	if row == nil {
		return 0
	}
	return row.PMID
}
