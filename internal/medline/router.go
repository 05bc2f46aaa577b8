package medline

import (
	"encoding/xml"
	"strconv"
	"strings"

	"github.com/helixir/medline-loader/internal/domain"
)

// frameKind tags the entity a stack frame is building.
type frameKind uint8

const (
	frameOutside frameKind = iota
	frameCitation
	frameDate
	frameArticle
	frameJournal
	frameIssue
	framePubDate
	framePagination
	frameAbstract
)

var frameNames = [...]string{
	frameOutside:    "outside",
	frameCitation:   "citation",
	frameDate:       "date",
	frameArticle:    "article",
	frameJournal:    "journal",
	frameIssue:      "journal_issue",
	framePubDate:    "publication_date",
	framePagination: "pagination",
	frameAbstract:   "abstract",
}

func (k frameKind) String() string {
	if int(k) < len(frameNames) {
		return frameNames[k]
	}
	return "frame(" + strconv.Itoa(int(k)) + ")"
}

// frame is one in-progress entity. Only the pointer matching kind is set.
type frame struct {
	kind   frameKind
	attach attachFunc

	citation   *domain.Citation
	date       *domain.DateParts
	article    *domain.Article
	journal    *domain.Journal
	issue      *domain.JournalIssue
	pubDate    *domain.PublicationDate
	pagination *domain.Pagination
	abstract   *domain.Abstract
}

// attachFunc hands a completed child to its parent.
type attachFunc func(parent, child *frame)

// setFunc stores leaf text on the current frame.
type setFunc func(f *frame, text string)

// Action is what the router tells the decoder to do with a start tag.
type Action uint8

const (
	// ActionIgnore skips the element and its subtree.
	ActionIgnore Action = iota
	// ActionEnter pushes a frame for a nested entity.
	ActionEnter
	// ActionSetScalar captures the element text into a field of the current frame.
	ActionSetScalar
	// ActionSelect captures text into a field chosen by an attribute value.
	ActionSelect
)

type routeKey struct {
	parent frameKind
	tag    string
}

type route struct {
	action Action

	// ActionEnter
	child  frameKind
	attach attachFunc

	// ActionSetScalar, and the fallback of ActionSelect
	set setFunc

	// ActionSelect
	attr    string
	choices map[string]setFunc
}

// step is a route resolved against one concrete start tag.
type step struct {
	action Action
	child  frameKind
	attach attachFunc
	set    setFunc
}

// routes maps (parent frame, tag) to an action. Tag matching is case-sensitive.
var routes = buildRoutes()

func buildRoutes() map[routeKey]route {
	r := map[routeKey]route{
		{frameOutside, "MedlineCitation"}: enter(frameCitation, nil),

		{frameCitation, "PMID"}:          scalar(setPMID),
		{frameCitation, "DateCreated"}:   enter(frameDate, attachDate(func(c *domain.Citation) **domain.DateParts { return &c.DateCreated })),
		{frameCitation, "DateCompleted"}: enter(frameDate, attachDate(func(c *domain.Citation) **domain.DateParts { return &c.DateCompleted })),
		{frameCitation, "DateRevised"}:   enter(frameDate, attachDate(func(c *domain.Citation) **domain.DateParts { return &c.DateRevised })),
		{frameCitation, "Article"}: enter(frameArticle, func(p, c *frame) {
			if p.citation.Article == nil {
				p.citation.Article = c.article
			}
		}),

		{frameDate, "Year"}:  scalar(func(f *frame, s string) { setOnce(&f.date.Year, s) }),
		{frameDate, "Month"}: scalar(func(f *frame, s string) { setOnce(&f.date.Month, s) }),
		{frameDate, "Day"}:   scalar(func(f *frame, s string) { setOnce(&f.date.Day, s) }),

		{frameArticle, "ArticleTitle"}: scalar(func(f *frame, s string) {
			if f.article.Title == "" {
				f.article.Title = s
			}
		}),
		{frameArticle, "Journal"}: enter(frameJournal, func(p, c *frame) {
			if p.article.Journal == nil {
				p.article.Journal = c.journal
			}
		}),
		{frameArticle, "Pagination"}: enter(framePagination, func(p, c *frame) {
			if p.article.Pagination == nil {
				p.article.Pagination = c.pagination
			}
		}),
		{frameArticle, "Abstract"}: enter(frameAbstract, func(p, c *frame) {
			if p.article.Abstract == nil {
				p.article.Abstract = c.abstract
			}
		}),

		{frameJournal, "Title"}: scalar(func(f *frame, s string) {
			if f.journal.Title == "" {
				f.journal.Title = s
			}
		}),
		{frameJournal, "ISOAbbreviation"}: scalar(func(f *frame, s string) { setOnce(&f.journal.ISOAbbreviation, s) }),
		{frameJournal, "JournalIssue"}: enter(frameIssue, func(p, c *frame) {
			if p.journal.JournalIssue == nil {
				p.journal.JournalIssue = c.issue
			}
		}),

		{frameIssue, "Volume"}: scalar(func(f *frame, s string) { setOnce(&f.issue.Volume, s) }),
		{frameIssue, "Issue"}:  scalar(func(f *frame, s string) { setOnce(&f.issue.Issue, s) }),
		{frameIssue, "PubDate"}: enter(framePubDate, func(p, c *frame) {
			if p.issue.PublicationDate == nil {
				p.issue.PublicationDate = c.pubDate
			}
		}),

		{framePubDate, "MedlineDate"}: scalar(func(f *frame, s string) { setOnce(&f.pubDate.MedlineDate, s) }),
		{framePubDate, "Year"}:        scalar(func(f *frame, s string) { setOnce(&f.pubDate.Year, s) }),
		{framePubDate, "Month"}:       scalar(func(f *frame, s string) { setOnce(&f.pubDate.Month, s) }),
		{framePubDate, "Day"}:         scalar(func(f *frame, s string) { setOnce(&f.pubDate.Day, s) }),
		{framePubDate, "Season"}:      scalar(func(f *frame, s string) { setOnce(&f.pubDate.Season, s) }),

		{framePagination, "MedlinePgn"}: scalar(func(f *frame, s string) { setOnce(&f.pagination.MedlinePgn, s) }),
		{framePagination, "StartPage"}:  scalar(func(f *frame, s string) { setOnce(&f.pagination.StartPage, s) }),
		{framePagination, "EndPage"}:    scalar(func(f *frame, s string) { setOnce(&f.pagination.EndPage, s) }),

		{frameAbstract, "AbstractText"}: selectBy("Label", abstractSegment(domain.LabelGeneral), map[string]setFunc{
			string(domain.LabelObjective):   abstractSegment(domain.LabelObjective),
			string(domain.LabelMethods):     abstractSegment(domain.LabelMethods),
			string(domain.LabelResults):     abstractSegment(domain.LabelResults),
			string(domain.LabelConclusions): abstractSegment(domain.LabelConclusions),
		}),
	}
	return r
}

// routeFor resolves the action for a start tag seen while building a frame of the given kind.
// Unknown tags resolve to ActionIgnore.
func routeFor(parent frameKind, el xml.StartElement) step {
	rt, ok := routes[routeKey{parent: parent, tag: el.Name.Local}]
	if !ok {
		return step{action: ActionIgnore}
	}

	switch rt.action {
	case ActionEnter:
		return step{action: ActionEnter, child: rt.child, attach: rt.attach}
	case ActionSetScalar:
		return step{action: ActionSetScalar, set: rt.set}
	case ActionSelect:
		set := rt.set
		if v, found := attrValue(el, rt.attr); found {
			if chosen, known := rt.choices[v]; known {
				set = chosen
			}
		}
		return step{action: ActionSelect, set: set}
	default:
		return step{action: ActionIgnore}
	}
}

// newFrame allocates the entity for a frame kind.
func newFrame(kind frameKind, attach attachFunc) frame {
	f := frame{kind: kind, attach: attach}
	switch kind {
	case frameCitation:
		f.citation = &domain.Citation{}
	case frameDate:
		f.date = &domain.DateParts{}
	case frameArticle:
		f.article = &domain.Article{}
	case frameJournal:
		f.journal = &domain.Journal{}
	case frameIssue:
		f.issue = &domain.JournalIssue{}
	case framePubDate:
		f.pubDate = &domain.PublicationDate{}
	case framePagination:
		f.pagination = &domain.Pagination{}
	case frameAbstract:
		f.abstract = &domain.Abstract{}
	}
	return f
}

func enter(child frameKind, attach attachFunc) route {
	return route{action: ActionEnter, child: child, attach: attach}
}

func scalar(set setFunc) route {
	return route{action: ActionSetScalar, set: set}
}

func selectBy(attr string, fallback setFunc, choices map[string]setFunc) route {
	return route{action: ActionSelect, attr: attr, set: fallback, choices: choices}
}

func attachDate(slot func(*domain.Citation) **domain.DateParts) attachFunc {
	return func(p, c *frame) {
		dst := slot(p.citation)
		if *dst == nil {
			*dst = c.date
		}
	}
}

func abstractSegment(label domain.AbstractLabel) setFunc {
	return func(f *frame, s string) {
		if s == "" {
			return
		}
		if !f.abstract.SetSegment(label, s) {
			f.abstract.Dropped = append(f.abstract.Dropped, label)
		}
	}
}

func setPMID(f *frame, s string) {
	if f.citation.RawPMID != "" {
		return
	}
	f.citation.RawPMID = s
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		f.citation.PMID = n
	}
}

// setOnce keeps the first non-empty occurrence of an optional leaf.
func setOnce(dst **string, s string) {
	if *dst != nil || s == "" {
		return
	}
	*dst = &s
}

func attrValue(el xml.StartElement, name string) (string, bool) {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return strings.TrimSpace(a.Value), true
		}
	}
	return "", false
}
