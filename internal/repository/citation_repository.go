package repository

import (
	"context"

	"github.com/helixir/medline-loader/internal/domain"
)

// CitationRepository persists flattened citations.
type CitationRepository interface {
	// Upsert inserts a row or replaces the stored row with the same PMID,
	// returning the row's id.
	Upsert(ctx context.Context, row *domain.FlatRow) (int64, error)

	// GetByPMID returns the stored row for a PMID.
	GetByPMID(ctx context.Context, pmid int64) (*domain.FlatRow, error)

	// Count returns the number of stored citations.
	Count(ctx context.Context) (int64, error)
}
