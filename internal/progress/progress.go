// Package progress prints a terminal progress stream for load runs: one dot
// per loaded record and one diagnostic line per failed record.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/helixir/medline-loader/internal/domain"
	"github.com/helixir/medline-loader/internal/ingest"
)

// dotsPerLine wraps the dot stream so long runs stay readable.
const dotsPerLine = 80

// Reporter implements ingest.Observer.
type Reporter struct {
	mu     sync.Mutex
	out    io.Writer
	ok     *color.Color
	bad    *color.Color
	column int
}

// New returns a reporter writing to out. Colors are disabled when plain is
// set or when fatih/color detects a non-terminal output.
func New(out io.Writer, plain bool) *Reporter {
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed, color.Bold)
	if plain {
		ok.DisableColor()
		bad.DisableColor()
	}
	return &Reporter{out: out, ok: ok, bad: bad}
}

// OnPersisted prints one dot.
func (r *Reporter) OnPersisted(_ int64, _ domain.RowID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = r.ok.Fprint(r.out, ".")
	r.column++
	if r.column == dotsPerLine {
		_, _ = fmt.Fprintln(r.out)
		r.column = 0
	}
}

// OnFailure prints the pmid and reason on a line of its own.
func (r *Reporter) OnFailure(f ingest.Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.column > 0 {
		_, _ = fmt.Fprintln(r.out)
		r.column = 0
	}
	_, _ = r.bad.Fprintf(r.out, "%s", f.PMID)
	_, _ = fmt.Fprintf(r.out, ": [%s] %s\n", f.Stage, f.Reason)
}

// Summary prints the totals of a finished or aborted run.
func (r *Reporter) Summary(report *ingest.Report, runErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.column > 0 {
		_, _ = fmt.Fprintln(r.out)
		r.column = 0
	}
	if report == nil {
		return
	}

	status := r.ok.Sprint("committed")
	switch {
	case report.Committed:
	case report.Processed > 0:
		status = r.bad.Sprintf("partially committed, %d rolled back", report.RolledBack)
	default:
		status = r.bad.Sprint("rolled back")
	}
	_, _ = fmt.Fprintf(r.out, "%s: %d processed, %d failed, %d date issues (%s, %s)\n",
		report.Source, report.Processed, report.Failed, report.DateIssues, status, report.Duration.Round(time.Millisecond))
	if runErr != nil {
		_, _ = r.bad.Fprintf(r.out, "%s: %v\n", report.Source, runErr)
	}
}
