package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/medline-loader/internal/config"
	"github.com/helixir/medline-loader/internal/database"
	"github.com/helixir/medline-loader/internal/observability"
	"github.com/helixir/medline-loader/internal/repository"
	httpserver "github.com/helixir/medline-loader/internal/server/http"
	"github.com/helixir/medline-loader/internal/sink"
)

// sinkTarget is the configured sink plus what the process needs to manage it.
type sinkTarget struct {
	sink   sink.Sink
	health httpserver.HealthChecker
	close  func()
}

// openSink builds the sink named by cfg.Sink.Kind, wrapping it in a rate
// limiter when one is configured.
func openSink(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) (*sinkTarget, error) {
	var target *sinkTarget

	switch cfg.Sink.Kind {
	case config.SinkPostgres:
		db, err := database.New(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if cfg.Database.MigrationAutoRun {
			if err := migrate(db, cfg.Database.MigrationPath, logger); err != nil {
				db.Close()
				return nil, err
			}
		}
		target = &sinkTarget{
			sink:   repository.NewPgSink(db, logger),
			health: db,
			close:  db.Close,
		}

	case config.SinkKafka:
		k := sink.NewKafka(sink.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			WriteTimeout: cfg.Kafka.WriteTimeout,
			SpoolDir:     cfg.Kafka.SpoolDir,
		}, logger)
		target = &sinkTarget{
			sink:  k,
			close: func() { logSinkClose(logger, k.Name(), k.Close()) },
		}

	case config.SinkDiscard:
		target = &sinkTarget{sink: sink.NewDiscard(), close: func() {}}

	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Sink.Kind)
	}

	if cfg.Sink.RateLimit > 0 {
		var onWait sink.WaitObserver
		if metrics != nil {
			onWait = func(waited time.Duration) { metrics.RecordThrottleWait(waited.Seconds()) }
		}
		target.sink = sink.NewThrottled(target.sink, cfg.Sink.RateLimit, cfg.Sink.RateBurst, onWait)
		logger.Info().
			Float64("rows_per_second", cfg.Sink.RateLimit).
			Int("burst", cfg.Sink.RateBurst).
			Msg("sink rate limit enabled")
	}

	return target, nil
}

func migrate(db *database.DB, path string, logger zerolog.Logger) error {
	m, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()
	if err := m.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
