package observability

import (
	"context"

	"github.com/rs/zerolog"
)

// Context keys for observability data.
type contextKey string

const (
	runIDKey  contextKey = "run_id"
	sourceKey contextKey = "source"
	sinkKey   contextKey = "sink"
)

// WithRun adds the load run ID and its input source name to the context.
func WithRun(ctx context.Context, runID, source string) context.Context {
	ctx = context.WithValue(ctx, runIDKey, runID)
	ctx = context.WithValue(ctx, sourceKey, source)
	return ctx
}

// RunFromContext retrieves the run ID and source name from context.
// Returns empty strings if not present.
func RunFromContext(ctx context.Context) (runID, source string) {
	if v := ctx.Value(runIDKey); v != nil {
		if id, ok := v.(string); ok {
			runID = id
		}
	}
	if v := ctx.Value(sourceKey); v != nil {
		if s, ok := v.(string); ok {
			source = s
		}
	}
	return runID, source
}

// WithSink records which sink a run writes to.
func WithSink(ctx context.Context, sink string) context.Context {
	return context.WithValue(ctx, sinkKey, sink)
}

// SinkFromContext retrieves the sink name from context.
// Returns empty string if not present.
func SinkFromContext(ctx context.Context) string {
	if v := ctx.Value(sinkKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// RunContext contains the identifying data of one load run.
type RunContext struct {
	RunID  string
	Source string
	Sink   string
}

// WithRunContext adds all run context to the context.
func WithRunContext(ctx context.Context, rc RunContext) context.Context {
	if rc.RunID != "" || rc.Source != "" {
		ctx = WithRun(ctx, rc.RunID, rc.Source)
	}
	if rc.Sink != "" {
		ctx = WithSink(ctx, rc.Sink)
	}
	return ctx
}

// RunContextFromContext extracts all run context from the context.
func RunContextFromContext(ctx context.Context) RunContext {
	runID, source := RunFromContext(ctx)
	return RunContext{
		RunID:  runID,
		Source: source,
		Sink:   SinkFromContext(ctx),
	}
}

// LoggerFromContext returns logger enriched with whatever run context ctx carries.
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	rc := RunContextFromContext(ctx)
	if rc.RunID != "" || rc.Source != "" {
		logger = WithRunLogContext(logger, rc.RunID, rc.Source)
	}
	if rc.Sink != "" {
		logger = logger.With().Str("sink", rc.Sink).Logger()
	}
	return logger
}
