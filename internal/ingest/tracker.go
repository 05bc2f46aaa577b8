package ingest

import (
	"sync"

	"github.com/helixir/medline-loader/internal/domain"
)

// Compile-time interface verification.
var _ Observer = (*Tracker)(nil)

// Status is a point-in-time view of a loader process.
type Status struct {
	// Running is true while a document is being loaded.
	Running bool   `json:"running"`
	Source  string `json:"source,omitempty"`
	// Persisted and Failed count records of the current run so far.
	Persisted int `json:"persisted"`
	Failed    int `json:"failed"`
	// Runs counts finished runs, committed or not.
	Runs int     `json:"runs"`
	Last *Report `json:"last,omitempty"`
}

// Tracker follows the runs of one process so they can be inspected while a
// long load is in progress. It is safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	status Status
}

// NewTracker creates an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Start marks a run on source as in progress.
func (t *Tracker) Start(source string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Running = true
	t.status.Source = source
	t.status.Persisted = 0
	t.status.Failed = 0
}

// Finish records the report of the run that just ended. A nil report only
// clears the running state.
func (t *Tracker) Finish(r *Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Running = false
	t.status.Runs++
	if r != nil {
		last := *r
		last.Failures = append([]Failure(nil), r.Failures...)
		t.status.Last = &last
	}
}

// OnPersisted implements Observer.
func (t *Tracker) OnPersisted(int64, domain.RowID) {
	t.mu.Lock()
	t.status.Persisted++
	t.mu.Unlock()
}

// OnFailure implements Observer.
func (t *Tracker) OnFailure(Failure) {
	t.mu.Lock()
	t.status.Failed++
	t.mu.Unlock()
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.status
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	return s
}
