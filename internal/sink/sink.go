// Package sink defines where flattened citation rows are written.
//
// A Sink opens one Session per load run. Rows persisted through a session
// become visible only when it commits; Rollback discards all of them. A row
// rejected by Persist does not invalidate the session.
//
// A sink that cannot commit atomically reports a commit that failed after
// some rows became durable with a *PartialCommitError.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/helixir/medline-loader/internal/domain"
)

// ErrSessionClosed is returned when a session is used after Commit or Rollback.
var ErrSessionClosed = errors.New("sink session closed")

// PartialCommitError is returned by Commit when the commit failed after the
// first Committed rows of the session were already durable. Those rows cannot
// be rolled back.
type PartialCommitError struct {
	Committed int
	Err       error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("commit failed after %d rows: %v", e.Committed, e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }

// Sink is a destination for flat rows.
type Sink interface {
	// Name identifies the sink in logs, metrics and failure reports.
	Name() string

	// Begin opens a session for one load run.
	Begin(ctx context.Context) (Session, error)
}

// Session accepts the rows of one run.
type Session interface {
	// Persist stores one row and returns its sink-assigned identifier.
	Persist(ctx context.Context, row *domain.FlatRow) (domain.RowID, error)

	// Commit makes every persisted row durable. A *PartialCommitError
	// reports rows that stayed durable despite the failure.
	Commit(ctx context.Context) error

	// Rollback discards every persisted row. It is safe to call after Commit,
	// in which case it does nothing.
	Rollback(ctx context.Context) error
}
