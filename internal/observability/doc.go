// Package observability provides logging, metrics, and context helpers for
// the MEDLINE loader.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stderr",
//	})
//	logger = observability.WithRunLogContext(logger, runID, "medline23n0001.xml.gz")
//
// # Metrics
//
//	metrics := observability.NewMetrics("medline_loader")
//	metrics.RecordRowPersisted("postgres", 0.002)
//	metrics.RecordDateIssue("created_on")
//
// # Context Helpers
//
//	ctx = observability.WithRun(ctx, runID, source)
//	runID, source := observability.RunFromContext(ctx)
//
// # Standard Fields
//
//   - run_id: identifier of one load run (UUID)
//   - source: input name (path, "-" or s3 URL)
//   - sink: destination (postgres, kafka, discard)
//   - pmid: PubMed identifier, or "unknown"
//   - stage: failing stage (flatten, sink)
package observability
