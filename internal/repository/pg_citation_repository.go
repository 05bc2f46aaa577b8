package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/helixir/medline-loader/internal/domain"
)

// Compile-time interface verification.
var _ CitationRepository = (*PgCitationRepository)(nil)

// PgCitationRepository is a PostgreSQL implementation of CitationRepository.
type PgCitationRepository struct {
	db DBTX
}

// NewPgCitationRepository creates a new PostgreSQL citation repository.
func NewPgCitationRepository(db DBTX) *PgCitationRepository {
	return &PgCitationRepository{db: db}
}

const upsertCitationSQL = `
		INSERT INTO citations (
			pmid, created_on, completed_on, revised_on,
			journal_title, iso_abbreviation, volume, issue, publication_date,
			pages, article_title, abstract, objective, methods, results, conclusions
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
		ON CONFLICT (pmid) DO UPDATE SET
			created_on = EXCLUDED.created_on,
			completed_on = EXCLUDED.completed_on,
			revised_on = EXCLUDED.revised_on,
			journal_title = EXCLUDED.journal_title,
			iso_abbreviation = EXCLUDED.iso_abbreviation,
			volume = EXCLUDED.volume,
			issue = EXCLUDED.issue,
			publication_date = EXCLUDED.publication_date,
			pages = EXCLUDED.pages,
			article_title = EXCLUDED.article_title,
			abstract = EXCLUDED.abstract,
			objective = EXCLUDED.objective,
			methods = EXCLUDED.methods,
			results = EXCLUDED.results,
			conclusions = EXCLUDED.conclusions,
			updated_at = NOW()
		RETURNING id`

// Upsert inserts a row or overwrites the stored row with the same PMID.
// A later revision of a citation replaces every column, including clearing
// fields the new revision omits.
func (r *PgCitationRepository) Upsert(ctx context.Context, row *domain.FlatRow) (int64, error) {
	if row == nil {
		return 0, domain.NewValidationError("row", "row cannot be nil")
	}
	if row.PMID <= 0 {
		return 0, domain.NewValidationError("pmid", "pmid must be positive")
	}

	var id int64
	err := r.db.QueryRow(ctx, upsertCitationSQL,
		row.PMID,
		dateArg(row.CreatedOn),
		dateArg(row.CompletedOn),
		dateArg(row.RevisedOn),
		row.JournalTitle,
		row.ISOAbbreviation,
		row.Volume,
		row.Issue,
		row.PublicationDate,
		row.Pages,
		row.ArticleTitle,
		row.Abstract,
		row.Objective,
		row.Methods,
		row.Results,
		row.Conclusions,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert citation %d: %w", row.PMID, err)
	}

	return id, nil
}

// GetByPMID retrieves a stored citation by PMID.
func (r *PgCitationRepository) GetByPMID(ctx context.Context, pmid int64) (*domain.FlatRow, error) {
	query := `
		SELECT pmid, created_on, completed_on, revised_on,
			journal_title, iso_abbreviation, volume, issue, publication_date,
			pages, article_title, abstract, objective, methods, results, conclusions
		FROM citations
		WHERE pmid = $1`

	row, err := scanCitation(r.db.QueryRow(ctx, query, pmid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("citation", strconv.FormatInt(pmid, 10))
		}
		return nil, fmt.Errorf("failed to get citation %d: %w", pmid, err)
	}
	return row, nil
}

// Count returns the number of stored citations.
func (r *PgCitationRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM citations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count citations: %w", err)
	}
	return n, nil
}

// citationScanDest holds the scan targets for one citations row.
type citationScanDest struct {
	row                               domain.FlatRow
	createdOn, completedOn, revisedOn pgtype.Date
}

func (d *citationScanDest) destinations() []any {
	return []any{
		&d.row.PMID, &d.createdOn, &d.completedOn, &d.revisedOn,
		&d.row.JournalTitle, &d.row.ISOAbbreviation, &d.row.Volume, &d.row.Issue, &d.row.PublicationDate,
		&d.row.Pages, &d.row.ArticleTitle, &d.row.Abstract, &d.row.Objective, &d.row.Methods,
		&d.row.Results, &d.row.Conclusions,
	}
}

func (d *citationScanDest) finalize() *domain.FlatRow {
	d.row.CreatedOn = calendarDate(d.createdOn)
	d.row.CompletedOn = calendarDate(d.completedOn)
	d.row.RevisedOn = calendarDate(d.revisedOn)
	return &d.row
}

func scanCitation(row pgx.Row) (*domain.FlatRow, error) {
	var dest citationScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize(), nil
}

// dateArg encodes an optional calendar date as a DATE parameter.
func dateArg(d *domain.CalendarDate) pgtype.Date {
	if d == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.Time(), Valid: true}
}

func calendarDate(d pgtype.Date) *domain.CalendarDate {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &domain.CalendarDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}
