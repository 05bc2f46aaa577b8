// Package domain provides the record model, flat row projection, and error taxonomy
// for the MEDLINE citation loader.
package domain

import "strings"

// CitationSet is the root of a dump file. It is never materialized as a whole:
// the decoder hands out one Citation at a time and keeps only the count.
type CitationSet struct {
	// Count is the number of citations emitted so far.
	Count int
}

// Citation is one MedlineCitation record.
type Citation struct {
	// PMID is the PubMed identifier. Zero means the source lacked a readable PMID.
	PMID int64

	// RawPMID holds the PMID text as found in the document, for diagnostics.
	RawPMID string

	// DateCreated is nil when the record had no DateCreated element.
	DateCreated *DateParts

	// DateCompleted is nil when the record had no DateCompleted element.
	DateCompleted *DateParts

	// DateRevised is nil when the record had no DateRevised element.
	DateRevised *DateParts

	// Article is required; nil marks a structurally broken record.
	Article *Article
}

// DateParts holds the raw Year/Month/Day text of a date element.
// Each part is nil when its sub-element was missing.
type DateParts struct {
	Year  *string
	Month *string
	Day   *string
}

// Article holds the article metadata of a citation.
type Article struct {
	Title      string
	Journal    *Journal
	Pagination *Pagination
	Abstract   *Abstract
}

// Journal describes the journal an article appeared in.
type Journal struct {
	// Title is required for a well-formed record.
	Title           string
	ISOAbbreviation *string
	JournalIssue    *JournalIssue
}

// JournalIssue holds volume, issue and publication date of a journal issue.
type JournalIssue struct {
	Volume          *string
	Issue           *string
	PublicationDate *PublicationDate
}

// PublicationDate is the PubDate element. The source either emits a free-text
// MedlineDate ("1998 Dec-1999 Jan") or structured parts.
type PublicationDate struct {
	MedlineDate *string
	Year        *string
	Month       *string
	Day         *string
	Season      *string
}

// Text returns the MedlineDate when present, otherwise the structured parts
// joined by a single space. ok is false when the element carried no text at all.
func (p *PublicationDate) Text() (text string, ok bool) {
	if p == nil {
		return "", false
	}
	if p.MedlineDate != nil && *p.MedlineDate != "" {
		return *p.MedlineDate, true
	}

	parts := make([]string, 0, 3)
	for _, part := range []*string{p.Year, p.Season, p.Month, p.Day} {
		if part != nil && *part != "" {
			parts = append(parts, *part)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, " "), true
}

// Pagination holds the page information of an article.
type Pagination struct {
	MedlinePgn *string
	StartPage  *string
	EndPage    *string
}

// Text returns MedlinePgn when present, otherwise StartPage-EndPage.
func (p *Pagination) Text() (text string, ok bool) {
	if p == nil {
		return "", false
	}
	if p.MedlinePgn != nil && *p.MedlinePgn != "" {
		return *p.MedlinePgn, true
	}
	if p.StartPage == nil || *p.StartPage == "" {
		return "", false
	}
	if p.EndPage == nil || *p.EndPage == "" || *p.EndPage == *p.StartPage {
		return *p.StartPage, true
	}
	return *p.StartPage + "-" + *p.EndPage, true
}

// AbstractLabel identifies one of the five abstract segments.
type AbstractLabel string

// Abstract segment labels as they appear in the Label attribute.
const (
	LabelObjective   AbstractLabel = "OBJECTIVE"
	LabelMethods     AbstractLabel = "METHODS"
	LabelResults     AbstractLabel = "RESULTS"
	LabelConclusions AbstractLabel = "CONCLUSIONS"
	// LabelGeneral is the unlabeled segment. Unknown labels fold into it.
	LabelGeneral AbstractLabel = ""
)

// Abstract holds up to five segments keyed by label. Any subset may be present.
type Abstract struct {
	Objective   *string
	Methods     *string
	Results     *string
	Conclusions *string
	General     *string

	// Dropped lists the slot of every segment discarded because that slot
	// was already filled, in document order.
	Dropped []AbstractLabel
}

// Segment returns a pointer to the slot that holds the given label.
// Unknown labels resolve to the general slot.
func (a *Abstract) Segment(label AbstractLabel) **string {
	switch label {
	case LabelObjective:
		return &a.Objective
	case LabelMethods:
		return &a.Methods
	case LabelResults:
		return &a.Results
	case LabelConclusions:
		return &a.Conclusions
	default:
		return &a.General
	}
}

// SetSegment stores text in the slot for label unless that slot is already taken.
// It reports whether the text was stored.
func (a *Abstract) SetSegment(label AbstractLabel, text string) bool {
	slot := a.Segment(label)
	if *slot != nil {
		return false
	}
	*slot = &text
	return true
}
