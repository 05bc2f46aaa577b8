package database_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/medline-loader/internal/database"
	"github.com/helixir/medline-loader/internal/database/dbtest"
)

func TestDB_Integration(t *testing.T) {
	db := dbtest.Start(t)
	ctx := context.Background()

	t.Run("health reports pool stats", func(t *testing.T) {
		h := db.Health(ctx)
		assert.True(t, h.Healthy())
		assert.GreaterOrEqual(t, h.MaxConns, int32(1))
	})

	t.Run("sessions are tagged", func(t *testing.T) {
		var name string
		require.NoError(t, db.QueryRow(ctx, `SELECT current_setting('application_name')`).Scan(&name))
		assert.Equal(t, database.ApplicationName, name)
	})

	t.Run("begin and roll back", func(t *testing.T) {
		tx, err := db.Begin(ctx)
		require.NoError(t, err)

		_, err = tx.Exec(ctx, `INSERT INTO citations (pmid, journal_title, article_title) VALUES (1, 'J', 'T')`)
		require.NoError(t, err)
		require.NoError(t, tx.Rollback(ctx))

		var n int
		require.NoError(t, db.QueryRow(ctx, `SELECT count(*) FROM citations`).Scan(&n))
		assert.Zero(t, n)
	})
}

func TestMigrator_Integration(t *testing.T) {
	db := dbtest.Start(t)

	m, err := database.NewMigrator(db, "", zerolog.Nop())
	require.NoError(t, err)
	defer m.Close()

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)

	require.NoError(t, m.Up(), "applying an up-to-date schema is a no-op")

	require.NoError(t, m.Steps(-1))
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, m.Down())
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Zero(t, version)

	require.NoError(t, m.Steps(5), "stepping past the newest migration is not an error")
}
