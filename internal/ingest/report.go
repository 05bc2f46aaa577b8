package ingest

import (
	"time"

	"github.com/google/uuid"

	"github.com/helixir/medline-loader/internal/domain"
)

// Failure stages.
const (
	StageFlatten = "flatten"
	StageSink    = "sink"
)

// Failure identifies one record that did not reach the sink.
type Failure struct {
	// PMID is the record key, or "unknown" when it could not be read.
	PMID   string `json:"pmid"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// Report summarizes one load run.
type Report struct {
	RunID  uuid.UUID `json:"run_id"`
	Source string    `json:"source"`
	Sink   string    `json:"sink"`

	// Decoded counts citation records read from the document.
	Decoded int `json:"decoded"`
	// Processed counts rows committed to the sink. When a commit fails after
	// part of the run became durable it counts that part.
	Processed int `json:"processed"`
	// Failed counts records that failed flattening or were rejected by the sink.
	Failed   int       `json:"failed"`
	Failures []Failure `json:"failures,omitempty"`
	// DateIssues counts dates that were present but did not compose.
	DateIssues int `json:"date_issues"`
	// DroppedSegments counts abstract segments discarded because their slot
	// was already filled.
	DroppedSegments int `json:"dropped_segments"`
	// RolledBack counts rows accepted by the session and then discarded
	// because the run aborted.
	RolledBack int `json:"rolled_back"`
	// Committed reports whether the whole run was committed.
	Committed bool `json:"committed"`

	Duration time.Duration `json:"duration"`
}

func newFailure(pmid int64, stage string, err error) Failure {
	return Failure{
		PMID:   domain.PMIDKey(pmid),
		Stage:  stage,
		Reason: err.Error(),
		Err:    err,
	}
}

// Observer is notified as records complete. Implementations must not block for long;
// they run on the ingest loop.
type Observer interface {
	OnPersisted(pmid int64, id domain.RowID)
	OnFailure(f Failure)
}
