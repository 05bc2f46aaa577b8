// Package ingest drives one load run: decode, flatten, persist, report.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/medline-loader/internal/domain"
	"github.com/helixir/medline-loader/internal/flatten"
	"github.com/helixir/medline-loader/internal/medline"
	"github.com/helixir/medline-loader/internal/observability"
	"github.com/helixir/medline-loader/internal/sink"
)

// Run abort reasons used as metric labels.
const (
	abortParse     = "parse"
	abortCancelled = "cancelled"
	abortSink      = "sink"
)

// Pipeline loads citation documents into a sink. A Pipeline runs one document
// at a time; it is not safe for concurrent Run calls.
type Pipeline struct {
	sink      sink.Sink
	logger    zerolog.Logger
	metrics   *observability.Metrics
	observers []Observer
	newRunID  func() uuid.UUID
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver registers an observer for per-record outcomes.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observers = append(p.observers, o)
	}
}

// WithMetrics records run and record metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithRunIDGenerator overrides how run IDs are generated.
func WithRunIDGenerator(f func() uuid.UUID) Option {
	return func(p *Pipeline) {
		p.newRunID = f
	}
}

// WithClock overrides the time source used for durations.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a pipeline writing to s.
func New(s sink.Sink, logger zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		sink:     s,
		logger:   logger.With().Str("component", "ingest").Logger(),
		newRunID: uuid.New,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run loads every citation in r. source names the input for reports and logs.
//
// Per-record failures are collected in the report and do not stop the run.
// A malformed document or a cancelled context rolls back the sink session, so
// no row of the run remains, and is returned as an error alongside the report.
// If Commit fails after part of the run became durable, the report counts
// that part as processed and the rest as rolled back.
func (p *Pipeline) Run(ctx context.Context, source string, r io.Reader) (*Report, error) {
	start := p.now()
	report := &Report{
		RunID:  p.newRunID(),
		Source: source,
		Sink:   p.sink.Name(),
	}
	ctx = observability.WithRunContext(ctx, observability.RunContext{
		RunID:  report.RunID.String(),
		Source: source,
		Sink:   report.Sink,
	})
	logger := observability.LoggerFromContext(ctx, p.logger)

	logger.Info().Msg("load run started")
	if p.metrics != nil {
		p.metrics.RecordRunStarted()
	}

	sess, err := p.sink.Begin(ctx)
	if err != nil {
		report.Duration = p.now().Sub(start)
		p.recordAbort(abortSink, report)
		return report, fmt.Errorf("begin %s session: %w", report.Sink, err)
	}

	dec := medline.NewDecoder(r)
	abort := func(reason string, cause error) (*Report, error) {
		if rbErr := sess.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			logger.Error().Err(rbErr).Msg("failed to roll back sink session")
		}
		kept := 0
		var partial *sink.PartialCommitError
		if errors.As(cause, &partial) {
			kept = min(partial.Committed, report.Processed)
		}
		report.Decoded = dec.Count()
		report.RolledBack = report.Processed - kept
		report.Processed = kept
		report.Duration = p.now().Sub(start)
		p.recordAbort(reason, report)
		logger.Error().Err(cause).
			Str("reason", reason).
			Int64("offset", dec.Offset()).
			Int("decoded", report.Decoded).
			Int("processed", report.Processed).
			Int("rolled_back", report.RolledBack).
			Msg("load run aborted")
		return report, cause
	}

	for c, err := range dec.All() {
		if err != nil {
			return abort(abortParse, err)
		}
		report.Decoded = dec.Count()
		if p.metrics != nil {
			p.metrics.RecordCitationDecoded()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return abort(abortCancelled, ctxErr)
		}

		res, err := flatten.Flatten(c)
		if err != nil {
			p.fail(logger, report, newFailure(c.PMID, StageFlatten, err))
			continue
		}
		recLogger := observability.WithCitationContext(logger, domain.PMIDKey(c.PMID))
		p.dateIssues(recLogger, report, res.DateIssues)
		p.droppedSegments(recLogger, report, res.DroppedSegments)

		persistStart := p.now()
		id, err := sess.Persist(ctx, res.Row)
		if err != nil {
			if cause := cancelled(ctx, err); cause != nil {
				return abort(abortCancelled, cause)
			}
			p.fail(logger, report, newFailure(c.PMID, StageSink, domain.NewSinkError(report.Sink, c.PMID, err)))
			continue
		}

		report.Processed++
		if p.metrics != nil {
			p.metrics.RecordRowPersisted(report.Sink, p.now().Sub(persistStart).Seconds())
		}
		for _, o := range p.observers {
			o.OnPersisted(c.PMID, id)
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return abort(abortCancelled, ctxErr)
	}
	if err := sess.Commit(ctx); err != nil {
		return abort(abortSink, fmt.Errorf("commit %s session: %w", report.Sink, err))
	}

	report.Committed = true
	report.Duration = p.now().Sub(start)
	if p.metrics != nil {
		p.metrics.RecordRunCompleted(report.Duration.Seconds())
	}
	logger.Info().
		Int("decoded", report.Decoded).
		Int("processed", report.Processed).
		Int("failed", report.Failed).
		Int("date_issues", report.DateIssues).
		Int("dropped_segments", report.DroppedSegments).
		Dur("duration", report.Duration).
		Msg("load run finished")

	return report, nil
}

// cancelled returns the reason a Persist error ends the whole run: ctx is
// done, or the sink refused to wait past the ctx deadline.
func cancelled(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if _, ok := ctx.Deadline(); ok && errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (p *Pipeline) fail(logger zerolog.Logger, report *Report, f Failure) {
	report.Failed++
	report.Failures = append(report.Failures, f)

	recLogger := observability.WithCitationContext(logger, f.PMID)
	recLogger.Warn().Err(f.Err).
		Str("stage", f.Stage).
		Msg("record failed")

	if p.metrics != nil {
		p.metrics.RecordFailure(f.Stage)
	}
	for _, o := range p.observers {
		o.OnFailure(f)
	}
}

func (p *Pipeline) dateIssues(logger zerolog.Logger, report *Report, issues []flatten.DateIssue) {
	for _, issue := range issues {
		report.DateIssues++
		logger.Debug().Err(issue.Err).
			Str("field", issue.Field).
			Msg("date left empty")
		if p.metrics != nil {
			p.metrics.RecordDateIssue(issue.Field)
		}
	}
}

func (p *Pipeline) droppedSegments(logger zerolog.Logger, report *Report, labels []domain.AbstractLabel) {
	for _, label := range labels {
		report.DroppedSegments++
		logger.Debug().
			Str("segment", segmentName(label)).
			Msg("abstract segment dropped, slot already filled")
	}
}

func segmentName(label domain.AbstractLabel) string {
	if label == domain.LabelGeneral {
		return "general"
	}
	return strings.ToLower(string(label))
}

func (p *Pipeline) recordAbort(reason string, report *Report) {
	if p.metrics != nil {
		p.metrics.RecordRunAborted(reason, report.Duration.Seconds())
	}
}
