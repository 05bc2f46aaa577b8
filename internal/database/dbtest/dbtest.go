// Package dbtest starts a disposable PostgreSQL container for integration tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/helixir/medline-loader/internal/config"
	"github.com/helixir/medline-loader/internal/database"
)

// Image is the PostgreSQL image integration tests run against.
const Image = "postgres:16-alpine"

const (
	dbName     = "medline_test"
	dbUser     = "medline"
	dbPassword = "medline"
)

// Start launches a PostgreSQL container, applies the embedded migrations and
// returns a connected pool. The container is terminated when the test ends.
// The test is skipped in short mode or when no container runtime is available.
func Start(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := tcpostgres.Run(ctx, Image,
		tcpostgres.WithDatabase(dbName),
		tcpostgres.WithUsername(dbUser),
		tcpostgres.WithPassword(dbPassword),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("skipping integration test: cannot start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	host, err := ctr.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		Host:              host,
		Port:              port.Int(),
		User:              dbUser,
		Password:          dbPassword,
		Name:              dbName,
		SSLMode:           config.SSLModeDisable,
		MaxConns:          4,
		MinConns:          1,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
		ConnectTimeout:    10 * time.Second,
	}

	db, err := database.New(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("connect to postgres container: %v", err)
	}
	t.Cleanup(db.Close)

	m, err := database.NewMigrator(db, "", zerolog.Nop())
	if err != nil {
		t.Fatalf("create migrator: %v", err)
	}
	defer func() { _ = m.Close() }()
	if err := m.Up(); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	return db
}
