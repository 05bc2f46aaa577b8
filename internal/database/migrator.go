package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"github.com/helixir/medline-loader/migrations"
)

// MigrationsTable records the applied schema version.
const MigrationsTable = "schema_migrations"

// Migrator applies the citation schema.
type Migrator struct {
	migrate *migrate.Migrate
	sqlDB   *sql.DB // sql.DB wrapper around the pgx pool, must be closed
	logger  zerolog.Logger
}

// NewMigrator creates a migrator reading migrations from a directory on disk.
// An empty path selects the migrations compiled into the binary.
func NewMigrator(db *DB, migrationsPath string, logger zerolog.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if db.pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}
	if migrationsPath == "" {
		return newMigrator(db, migrations.FS, "embedded", logger)
	}
	info, err := os.Stat(migrationsPath)
	if err != nil {
		return nil, fmt.Errorf("migrations path validation failed: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations path validation failed: %s is not a directory", migrationsPath)
	}
	return newMigrator(db, os.DirFS(migrationsPath), migrationsPath, logger)
}

func newMigrator(db *DB, fsys fs.FS, origin string, logger zerolog.Logger) (*Migrator, error) {
	src, err := openSource(fsys)
	if err != nil {
		return nil, err
	}

	sqlDB := stdlib.OpenDBFromPool(db.pool)
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		_ = src.Close()
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	m.Log = migrateLog{logger: logger}

	return &Migrator{
		migrate: m,
		sqlDB:   sqlDB,
		logger:  logger.With().Str("migrations", origin).Logger(),
	}, nil
}

// openSource wraps fsys as a migration source rooted at its top directory.
func openSource(fsys fs.FS) (source.Driver, error) {
	src, err := iofs.New(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}
	return src, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (m *Migrator) Up() error {
	return m.apply("up", m.migrate.Up)
}

// Down reverts every applied migration, dropping the citations schema.
func (m *Migrator) Down() error {
	return m.apply("down", m.migrate.Down)
}

// Steps applies n migrations, or reverts -n when n is negative. Stepping past
// either end of the migration set stops there without error.
func (m *Migrator) Steps(n int) error {
	return m.apply(fmt.Sprintf("steps %+d", n), func() error {
		err := m.migrate.Steps(n)
		var short migrate.ErrShortLimit
		if errors.Is(err, os.ErrNotExist) || errors.As(err, &short) {
			return migrate.ErrNoChange
		}
		return err
	})
}

func (m *Migrator) apply(op string, fn func() error) error {
	before, _, _ := m.Version()
	if err := fn(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info().Str("op", op).Uint("version", before).Msg("schema unchanged")
			return nil
		}
		return fmt.Errorf("migrate %s: %w", op, err)
	}
	after, _, _ := m.Version()
	m.logger.Info().Str("op", op).Uint("from", before).Uint("to", after).Msg("schema migrated")
	return nil
}

// Version returns the current migration version. A fresh database reports
// version 0 with no error.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Force records version as applied and clears the dirty flag without
// running any migration.
func (m *Migrator) Force(version int) error {
	m.logger.Warn().Int("version", version).Msg("forcing schema version")
	return m.migrate.Force(version)
}

// Close closes the migrator and releases resources.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()

	if m.sqlDB != nil {
		if err := m.sqlDB.Close(); err != nil && dbErr == nil {
			dbErr = err
		}
	}

	return errors.Join(wrapErr("close source", sourceErr), wrapErr("close database", dbErr))
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// migrateLog forwards golang-migrate's progress lines to zerolog at debug.
type migrateLog struct {
	logger zerolog.Logger
}

func (l migrateLog) Printf(format string, v ...any) {
	l.logger.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLog) Verbose() bool {
	return l.logger.GetLevel() <= zerolog.DebugLevel
}
