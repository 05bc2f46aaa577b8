// Package main is the entry point for the MEDLINE loader. It streams each
// input document through the decoder and flattener into the configured sink,
// one transaction per document.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/helixir/medline-loader/internal/config"
	"github.com/helixir/medline-loader/internal/ingest"
	"github.com/helixir/medline-loader/internal/observability"
	"github.com/helixir/medline-loader/internal/progress"
	httpserver "github.com/helixir/medline-loader/internal/server/http"
	"github.com/helixir/medline-loader/internal/source"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	sinkKind  string
	dryRun    bool
	quiet     bool
	plain     bool
	keepGoing bool
	inputs    []string
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("medline-loader", flag.ContinueOnError)
	var opts options
	fs.StringVar(&opts.sinkKind, "sink", "", "Sink to load into (postgres, kafka, discard). Overrides MEDLINE_SINK_KIND")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Decode and flatten without storing anything")
	fs.BoolVar(&opts.quiet, "quiet", false, "Suppress the progress stream on stdout")
	fs.BoolVar(&opts.plain, "plain", false, "Disable colored progress output")
	fs.BoolVar(&opts.keepGoing, "keep-going", false, "Continue with the next input after a run aborts")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: medline-loader [flags] [file|s3://bucket/key|pubmed:PMID,...|-]...\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.inputs = lo.Uniq(fs.Args())
	if len(opts.inputs) == 0 {
		opts.inputs = []string{source.StdinName}
	}
	if opts.dryRun {
		if opts.sinkKind != "" && opts.sinkKind != config.SinkDiscard {
			return options{}, fmt.Errorf("-dry-run conflicts with -sink %s", opts.sinkKind)
		}
		opts.sinkKind = config.SinkDiscard
	}
	return opts, nil
}

func run() error {
	opts, err := parseFlags(os.Args[1:])
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
	if opts.sinkKind != "" {
		cfg.Sink.Kind = opts.sinkKind
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger.Info().
		Str("sink", cfg.Sink.Kind).
		Strs("inputs", opts.inputs).
		Msg("starting medline loader")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	target, err := openSink(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer target.close()

	openerOpts := []source.Option{source.WithMetrics(metrics)}
	if lo.SomeBy(opts.inputs, isS3URI) {
		client, err := source.NewS3Client(ctx, cfg.S3)
		if err != nil {
			return fmt.Errorf("create S3 client: %w", err)
		}
		openerOpts = append(openerOpts, source.WithS3(client))
	}
	if lo.SomeBy(opts.inputs, isPubMedInput) {
		openerOpts = append(openerOpts, source.WithEFetch(source.NewEFetchClient(source.EFetchConfig{
			BaseURL:    cfg.EUtils.BaseURL,
			APIKey:     cfg.EUtils.APIKey,
			Tool:       cfg.EUtils.Tool,
			Email:      cfg.EUtils.Email,
			RateLimit:  cfg.EUtils.RateLimit,
			Timeout:    cfg.EUtils.Timeout,
			MaxRetries: cfg.EUtils.MaxRetries,
		})))
	}
	opener := source.NewOpener(openerOpts...)

	tracker := ingest.NewTracker()
	pipelineOpts := []ingest.Option{
		ingest.WithMetrics(metrics),
		ingest.WithObserver(tracker),
	}
	var reporter *progress.Reporter
	if !opts.quiet {
		reporter = progress.New(os.Stdout, opts.plain)
		pipelineOpts = append(pipelineOpts, ingest.WithObserver(reporter))
	}
	pipeline := ingest.New(target.sink, logger, pipelineOpts...)

	var srv *httpserver.Server
	errCh := make(chan error, 1)
	if cfg.Server.Enabled {
		serverOpts := []httpserver.Option{httpserver.WithStatus(tracker)}
		if target.health != nil {
			serverOpts = append(serverOpts, httpserver.WithHealthChecker(target.health))
		}
		metricsPath := ""
		if cfg.Metrics.Enabled {
			metricsPath = cfg.Metrics.Path
		}
		srv = httpserver.NewServer(httpserver.Config{
			Address:      cfg.Server.HTTPAddress(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			MetricsPath:  metricsPath,
		}, logger, serverOpts...)
		go func() {
			if err := srv.Start(); err != nil {
				errCh <- fmt.Errorf("HTTP server: %w", err)
			}
		}()
	}

	processed, failed, aborted := 0, 0, 0
	for _, name := range opts.inputs {
		if ctx.Err() != nil {
			break
		}
		select {
		case err := <-errCh:
			return err
		default:
		}

		report, err := loadOne(ctx, opener, pipeline, tracker, name)
		if reporter != nil {
			reporter.Summary(report, err)
		}
		if report != nil {
			processed += report.Processed
			failed += report.Failed
		}
		if err != nil {
			aborted++
			logger.Error().Err(err).Str("source", name).Msg("load run aborted")
			if !opts.keepGoing {
				break
			}
		}
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}

	logger.Info().
		Int("runs", tracker.Snapshot().Runs).
		Int("processed", processed).
		Int("failed", failed).
		Msg("medline loader finished")

	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("interrupted: %w", context.Cause(ctx))
	case aborted > 0:
		return fmt.Errorf("%d of %d inputs aborted", aborted, len(opts.inputs))
	}
	// Per-record failures are reported above but do not fail the process.
	return nil
}

// loadOne runs a single input. The returned report is nil only when the
// input could not be opened.
func loadOne(ctx context.Context, opener *source.Opener, pipeline *ingest.Pipeline, tracker *ingest.Tracker, name string) (*ingest.Report, error) {
	in, err := opener.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = in.Close() }()

	tracker.Start(in.Name)
	report, err := pipeline.Run(ctx, in.Name, in)
	tracker.Finish(report)
	return report, err
}

func isS3URI(name string) bool {
	return strings.HasPrefix(name, source.SchemeS3+"://")
}

func isPubMedInput(name string) bool {
	return strings.HasPrefix(name, source.SchemePubMed+":")
}

// logSinkClose is shared by the sink closers.
func logSinkClose(logger zerolog.Logger, name string, err error) {
	if err != nil {
		logger.Error().Err(err).Str("sink", name).Msg("failed to close sink")
	}
}
