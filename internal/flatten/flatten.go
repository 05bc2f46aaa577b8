// Package flatten projects decoded citations onto the flat row shape stored by sinks.
package flatten

import (
	"github.com/helixir/medline-loader/internal/domain"
)

// Required paths reported in structural failures.
const (
	PathPMID         = "pmid"
	PathArticle      = "article"
	PathJournal      = "article.journal"
	PathJournalTitle = "article.journal.title"
)

// Date fields reported in date issues.
const (
	FieldCreatedOn   = "created_on"
	FieldCompletedOn = "completed_on"
	FieldRevisedOn   = "revised_on"
)

// DateIssue records a date that was present in the source but could not be composed.
// The corresponding row field is left empty.
type DateIssue struct {
	Field string
	Err   error
}

// Result is the outcome of flattening one citation.
type Result struct {
	Row        *domain.FlatRow
	DateIssues []DateIssue
	// DroppedSegments are abstract segments that lost their slot to an earlier one.
	DroppedSegments []domain.AbstractLabel
}

// Flatten projects a citation onto a FlatRow. It returns a *domain.StructuralFailure
// when the pmid, the article, or the journal title is missing. Absent optional
// values become nil. Flatten does not mutate c and returns equal rows for equal input.
func Flatten(c *domain.Citation) (Result, error) {
	if c == nil || c.PMID <= 0 {
		return Result{}, domain.NewStructuralFailure(0, PathPMID)
	}

	article, ok := FromPtr(c.Article).Get()
	if !ok {
		return Result{}, domain.NewStructuralFailure(c.PMID, PathArticle)
	}
	journal, ok := FromPtr(article.Journal).Get()
	if !ok {
		return Result{}, domain.NewStructuralFailure(c.PMID, PathJournal)
	}
	if journal.Title == "" {
		return Result{}, domain.NewStructuralFailure(c.PMID, PathJournalTitle)
	}

	issue := FromPtr(journal.JournalIssue)
	abstract := FromPtr(article.Abstract)
	segment := func(label domain.AbstractLabel) *string {
		return Then(abstract, func(a *domain.Abstract) Maybe[string] {
			return Deref(*a.Segment(label))
		}).Ptr()
	}

	row := &domain.FlatRow{
		PMID:            c.PMID,
		JournalTitle:    journal.Title,
		ISOAbbreviation: Deref(journal.ISOAbbreviation).Ptr(),
		Volume: Then(issue, func(i *domain.JournalIssue) Maybe[string] {
			return Deref(i.Volume)
		}).Ptr(),
		Issue: Then(issue, func(i *domain.JournalIssue) Maybe[string] {
			return Deref(i.Issue)
		}).Ptr(),
		PublicationDate: Then(issue, func(i *domain.JournalIssue) Maybe[string] {
			return Text(i.PublicationDate.Text())
		}).Ptr(),
		Pages:        Text(article.Pagination.Text()).Ptr(),
		ArticleTitle: article.Title,
		Abstract:     segment(domain.LabelGeneral),
		Objective:    segment(domain.LabelObjective),
		Methods:      segment(domain.LabelMethods),
		Results:      segment(domain.LabelResults),
		Conclusions:  segment(domain.LabelConclusions),
	}

	var issues []DateIssue
	row.CreatedOn = composeOptional(FieldCreatedOn, c.DateCreated, &issues)
	row.CompletedOn = composeOptional(FieldCompletedOn, c.DateCompleted, &issues)
	row.RevisedOn = composeOptional(FieldRevisedOn, c.DateRevised, &issues)

	res := Result{Row: row, DateIssues: issues}
	if a, ok := abstract.Get(); ok && len(a.Dropped) > 0 {
		res.DroppedSegments = append([]domain.AbstractLabel(nil), a.Dropped...)
	}
	return res, nil
}

// composeOptional returns nil for an absent date and for one that fails to
// compose; only the latter is recorded as an issue.
func composeOptional(field string, parts *domain.DateParts, issues *[]DateIssue) *domain.CalendarDate {
	p, ok := FromPtr(parts).Get()
	if !ok {
		return nil
	}
	d, err := domain.ComposeDateParts(p)
	if err != nil {
		*issues = append(*issues, DateIssue{Field: field, Err: err})
		return nil
	}
	return &d
}
