package medline

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/medline-loader/internal/domain"
)

func startTag(name string, attrs ...string) xml.StartElement {
	el := xml.StartElement{Name: xml.Name{Local: name}}
	for i := 0; i+1 < len(attrs); i += 2 {
		el.Attr = append(el.Attr, xml.Attr{Name: xml.Name{Local: attrs[i]}, Value: attrs[i+1]})
	}
	return el
}

func TestRouteFor(t *testing.T) {
	t.Run("enter actions", func(t *testing.T) {
		cases := []struct {
			parent frameKind
			tag    string
			child  frameKind
		}{
			{frameOutside, "MedlineCitation", frameCitation},
			{frameCitation, "DateCreated", frameDate},
			{frameCitation, "DateRevised", frameDate},
			{frameCitation, "Article", frameArticle},
			{frameArticle, "Journal", frameJournal},
			{frameJournal, "JournalIssue", frameIssue},
			{frameIssue, "PubDate", framePubDate},
			{frameArticle, "Abstract", frameAbstract},
		}
		for _, tc := range cases {
			st := routeFor(tc.parent, startTag(tc.tag))
			assert.Equal(t, ActionEnter, st.action, "%s/%s", tc.parent, tc.tag)
			assert.Equal(t, tc.child, st.child, "%s/%s", tc.parent, tc.tag)
		}
	})

	t.Run("same tag differs by parent", func(t *testing.T) {
		assert.Equal(t, ActionSetScalar, routeFor(frameJournal, startTag("Title")).action)
		assert.Equal(t, ActionIgnore, routeFor(frameArticle, startTag("Title")).action)
		assert.Equal(t, ActionSetScalar, routeFor(frameDate, startTag("Year")).action)
		assert.Equal(t, ActionSetScalar, routeFor(framePubDate, startTag("Year")).action)
	})

	t.Run("unknown tag is ignored", func(t *testing.T) {
		assert.Equal(t, ActionIgnore, routeFor(frameCitation, startTag("MeshHeadingList")).action)
		assert.Equal(t, ActionIgnore, routeFor(frameOutside, startTag("PubmedArticleSet")).action)
	})

	t.Run("abstract text selects by label", func(t *testing.T) {
		labels := map[string]func(f *frame) *string{
			"OBJECTIVE":   func(f *frame) *string { return f.abstract.Objective },
			"METHODS":     func(f *frame) *string { return f.abstract.Methods },
			"RESULTS":     func(f *frame) *string { return f.abstract.Results },
			"CONCLUSIONS": func(f *frame) *string { return f.abstract.Conclusions },
			"BACKGROUND":  func(f *frame) *string { return f.abstract.General },
			"objective":   func(f *frame) *string { return f.abstract.General },
		}
		for label, slot := range labels {
			f := newFrame(frameAbstract, nil)
			st := routeFor(frameAbstract, startTag("AbstractText", "Label", label))
			require.Equal(t, ActionSelect, st.action)
			st.set(&f, "text")
			require.NotNil(t, slot(&f), label)
			assert.Equal(t, "text", *slot(&f), label)
		}
	})

	t.Run("segments losing their slot are recorded", func(t *testing.T) {
		f := newFrame(frameAbstract, nil)
		routeFor(frameAbstract, startTag("AbstractText")).set(&f, "g")
		routeFor(frameAbstract, startTag("AbstractText", "Label", "BACKGROUND")).set(&f, "bg")
		routeFor(frameAbstract, startTag("AbstractText", "Label", "RESULTS")).set(&f, "r1")
		routeFor(frameAbstract, startTag("AbstractText", "Label", "RESULTS")).set(&f, "r2")

		assert.Equal(t, "g", *f.abstract.General)
		assert.Equal(t, "r1", *f.abstract.Results)
		assert.Equal(t, []domain.AbstractLabel{domain.LabelGeneral, domain.LabelResults}, f.abstract.Dropped)
	})

	t.Run("abstract text without label goes to general", func(t *testing.T) {
		f := newFrame(frameAbstract, nil)
		st := routeFor(frameAbstract, startTag("AbstractText", "NlmCategory", "METHODS"))
		st.set(&f, "plain")
		require.NotNil(t, f.abstract.General)
		assert.Nil(t, f.abstract.Methods)
	})
}

func TestSetOnce(t *testing.T) {
	var dst *string
	setOnce(&dst, "")
	assert.Nil(t, dst)
	setOnce(&dst, "a")
	setOnce(&dst, "b")
	require.NotNil(t, dst)
	assert.Equal(t, "a", *dst)
}

func TestFrameKind_String(t *testing.T) {
	assert.Equal(t, "journal_issue", frameIssue.String())
	assert.Equal(t, "frame(99)", frameKind(99).String())
}
