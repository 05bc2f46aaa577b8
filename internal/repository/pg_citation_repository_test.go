package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/medline-loader/internal/domain"
)

func strp(s string) *string { return &s }

// newTestRow returns a fully populated row.
func newTestRow() *domain.FlatRow {
	return &domain.FlatRow{
		PMID:            10000001,
		CreatedOn:       &domain.CalendarDate{Year: 1999, Month: time.December, Day: 7},
		RevisedOn:       &domain.CalendarDate{Year: 2006, Month: time.November, Day: 15},
		JournalTitle:    "Journal of Testing",
		ISOAbbreviation: strp("J Test"),
		Volume:          strp("12"),
		Issue:           strp("4"),
		PublicationDate: strp("1999 Dec 10"),
		Pages:           strp("100-9"),
		ArticleTitle:    "A study of things",
		Abstract:        strp("Background text."),
		Objective:       strp("To test."),
		Methods:         strp("We tested."),
		Results:         strp("It worked."),
		Conclusions:     strp("Testing helps."),
	}
}

func upsertArgs(row *domain.FlatRow) []any {
	return []any{
		row.PMID,
		dateArg(row.CreatedOn), dateArg(row.CompletedOn), dateArg(row.RevisedOn),
		row.JournalTitle, row.ISOAbbreviation, row.Volume, row.Issue, row.PublicationDate,
		row.Pages, row.ArticleTitle, row.Abstract, row.Objective, row.Methods, row.Results, row.Conclusions,
	}
}

var citationColumns = []string{
	"pmid", "created_on", "completed_on", "revised_on",
	"journal_title", "iso_abbreviation", "volume", "issue", "publication_date",
	"pages", "article_title", "abstract", "objective", "methods", "results", "conclusions",
}

func TestNewPgCitationRepository(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgCitationRepository(mock)
	assert.NotNil(t, repo)
	assert.NotNil(t, repo.db)
}

func TestPgCitationRepository_Upsert(t *testing.T) {
	ctx := context.Background()

	t.Run("upserts row and returns id", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		row := newTestRow()
		mock.ExpectQuery("INSERT INTO citations").
			WithArgs(upsertArgs(row)...).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

		id, err := NewPgCitationRepository(mock).Upsert(ctx, row)
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("absent dates bind as NULL", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		row := &domain.FlatRow{PMID: 5, JournalTitle: "J", ArticleTitle: "T"}
		args := upsertArgs(row)
		assert.Equal(t, pgtype.Date{}, args[1])

		mock.ExpectQuery("ON CONFLICT \\(pmid\\) DO UPDATE").
			WithArgs(args...).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))

		_, err = NewPgCitationRepository(mock).Upsert(ctx, row)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects nil row", func(t *testing.T) {
		_, err := NewPgCitationRepository(nil).Upsert(ctx, nil)
		var validationErr *domain.ValidationError
		require.True(t, errors.As(err, &validationErr))
		assert.Equal(t, "row", validationErr.Field)
	})

	t.Run("rejects non-positive pmid", func(t *testing.T) {
		_, err := NewPgCitationRepository(nil).Upsert(ctx, &domain.FlatRow{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("wraps database error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		row := newTestRow()
		pgErr := &pgconn.PgError{Code: pgCheckViolation, ConstraintName: "citations_pmid_positive"}
		mock.ExpectQuery("INSERT INTO citations").
			WithArgs(upsertArgs(row)...).
			WillReturnError(pgErr)

		_, err = NewPgCitationRepository(mock).Upsert(ctx, row)
		require.Error(t, err)
		assert.ErrorIs(t, err, pgErr)
		assert.Contains(t, err.Error(), "failed to upsert citation 10000001")
		assert.True(t, isRowRejection(err))
	})
}

func TestPgCitationRepository_GetByPMID(t *testing.T) {
	ctx := context.Background()

	t.Run("scans row", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		want := newTestRow()
		mock.ExpectQuery("SELECT pmid").
			WithArgs(want.PMID).
			WillReturnRows(pgxmock.NewRows(citationColumns).AddRow(
				want.PMID,
				dateArg(want.CreatedOn), pgtype.Date{}, dateArg(want.RevisedOn),
				want.JournalTitle, want.ISOAbbreviation, want.Volume, want.Issue, want.PublicationDate,
				want.Pages, want.ArticleTitle, want.Abstract, want.Objective, want.Methods, want.Results, want.Conclusions,
			))

		got, err := NewPgCitationRepository(mock).GetByPMID(ctx, want.PMID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Nil(t, got.CompletedOn)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery("SELECT pmid").
			WithArgs(int64(7)).
			WillReturnError(pgx.ErrNoRows)

		got, err := NewPgCitationRepository(mock).GetByPMID(ctx, 7)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Contains(t, err.Error(), "citation not found: 7")
	})
}

func TestPgCitationRepository_Count(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT count").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))

	n, err := NewPgCitationRepository(mock).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestDateConversion(t *testing.T) {
	d := &domain.CalendarDate{Year: 2020, Month: time.February, Day: 29}
	assert.Equal(t, d, calendarDate(dateArg(d)))
	assert.Nil(t, calendarDate(dateArg(nil)))
}

func TestPgErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		rejection bool
	}{
		{"unique violation", &pgconn.PgError{Code: pgUniqueViolation}, true},
		{"check violation", &pgconn.PgError{Code: pgCheckViolation}, true},
		{"not null violation", &pgconn.PgError{Code: pgNotNullViolation}, true},
		{"value too long", &pgconn.PgError{Code: pgStringDataTruncated}, true},
		{"connection failure", &pgconn.PgError{Code: "08006"}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.rejection, isRowRejection(tt.err))
		})
	}
}
