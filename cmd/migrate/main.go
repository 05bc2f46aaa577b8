// Package main applies and inspects the citations schema migrations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/helixir/medline-loader/internal/config"
	"github.com/helixir/medline-loader/internal/database"
	"github.com/helixir/medline-loader/internal/observability"
)

const connectTimeout = 30 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// command is one migrate action selected on the command line.
type command struct {
	name  string
	apply func(m *database.Migrator, logger zerolog.Logger) error
}

func parseCommand(args []string) (command, string, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	up := fs.Bool("up", false, "Apply all pending migrations")
	down := fs.Bool("down", false, "Revert every migration, dropping the citations schema")
	steps := fs.Int("steps", 0, "Apply N migrations, or revert N when negative")
	version := fs.Bool("version", false, "Print the current schema version")
	force := fs.Int("force", -1, "Mark the schema as being at version V without running anything")
	path := fs.String("path", "", "Read migrations from this directory instead of the built-in set")
	if err := fs.Parse(args); err != nil {
		return command{}, "", err
	}

	selected := lo.Count([]bool{*up, *down, *steps != 0, *version, *force >= 0}, true)
	switch {
	case selected == 0:
		fs.Usage()
		return command{}, "", errors.New("no action specified: use one of -up, -down, -steps N, -version, -force V")
	case selected > 1:
		return command{}, "", errors.New("specify only one action at a time")
	}

	switch {
	case *up:
		return command{name: "up", apply: func(m *database.Migrator, _ zerolog.Logger) error {
			return m.Up()
		}}, *path, nil
	case *down:
		return command{name: "down", apply: func(m *database.Migrator, logger zerolog.Logger) error {
			logger.Warn().Msg("reverting all migrations")
			return m.Down()
		}}, *path, nil
	case *steps != 0:
		n := *steps
		return command{name: "steps", apply: func(m *database.Migrator, logger zerolog.Logger) error {
			logger.Info().Int("steps", n).Msg("running migration steps")
			return m.Steps(n)
		}}, *path, nil
	case *force >= 0:
		v := *force
		return command{name: "force", apply: func(m *database.Migrator, logger zerolog.Logger) error {
			logger.Warn().Int("version", v).Msg("forcing schema version")
			return m.Force(v)
		}}, *path, nil
	default:
		return command{name: "version", apply: func(*database.Migrator, zerolog.Logger) error {
			return nil
		}}, *path, nil
	}
}

func run(args []string) error {
	cmd, pathOverride, err := parseCommand(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	})
	logger = observability.WithComponent(logger, "migrate")

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	source := lo.CoalesceOrEmpty(pathOverride, cfg.Database.MigrationPath)
	migrator, err := database.NewMigrator(db, source, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := cmd.apply(migrator, logger); err != nil {
		return fmt.Errorf("migrate %s: %w", cmd.name, err)
	}
	logVersion(migrator, logger)
	return nil
}

func logVersion(m *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := m.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine schema version")
		return
	}
	logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("schema version")
}
