// Package medline decodes MEDLINE citation dumps one record at a time.
//
// The decoder reads the document as a token stream and keeps only the frames
// of the record currently being built, so memory stays bounded by the largest
// single record rather than the document. Wrapper elements such as
// MedlineCitationSet or PubmedArticleSet are descended transparently and
// every MedlineCitation found at any depth is emitted.
package medline

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/helixir/medline-loader/internal/domain"
)

// Decoder pulls Citations from a MEDLINE XML stream.
type Decoder struct {
	xd    *xml.Decoder
	stack []frame
	depth int
	set   domain.CitationSet

	sawRoot    bool
	rootClosed bool
	err        error
}

// NewDecoder returns a decoder reading from r. Documents declaring a
// non-UTF-8 encoding are transcoded on the fly.
func NewDecoder(r io.Reader) *Decoder {
	xd := xml.NewDecoder(r)
	xd.Strict = true
	xd.CharsetReader = charsetReader
	return &Decoder{
		xd:    xd,
		stack: make([]frame, 0, 8),
	}
}

// Count returns the number of citations emitted so far.
func (d *Decoder) Count() int {
	return d.set.Count
}

// Offset returns the current input byte offset.
func (d *Decoder) Offset() int64 {
	return d.xd.InputOffset()
}

// Next returns the next citation in document order. It returns io.EOF once the
// root element has closed and the input is exhausted. Malformed input yields a
// *domain.FatalParseError, after which every call returns the same error.
func (d *Decoder) Next() (*domain.Citation, error) {
	if d.err != nil {
		return nil, d.err
	}

	for {
		tok, err := d.xd.Token()
		if errors.Is(err, io.EOF) {
			return nil, d.finish()
		}
		if err != nil {
			return nil, d.fail(err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if d.rootClosed {
				return nil, d.fail(fmt.Errorf("element <%s> after root element", t.Name.Local))
			}
			d.sawRoot = true
			d.depth++
			if err := d.start(t); err != nil {
				return nil, d.fail(err)
			}

		case xml.EndElement:
			d.depth--
			if d.depth == 0 {
				d.rootClosed = true
			}
			if c := d.end(); c != nil {
				d.set.Count++
				return c, nil
			}

		case xml.CharData:
			if d.depth == 0 && len(strings.TrimSpace(string(t))) > 0 {
				return nil, d.fail(errors.New("text outside root element"))
			}
		}
	}
}

// All iterates the remaining citations. Iteration stops after the first error.
func (d *Decoder) All() iter.Seq2[*domain.Citation, error] {
	return func(yield func(*domain.Citation, error) bool) {
		for {
			c, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(c, err) || err != nil {
				return
			}
		}
	}
}

// start handles an opening tag. Inside a record the router decides; outside
// one, only MedlineCitation matters and every other element is descended.
func (d *Decoder) start(el xml.StartElement) error {
	parent := frameOutside
	if n := len(d.stack); n > 0 {
		parent = d.stack[n-1].kind
	}

	st := routeFor(parent, el)
	switch st.action {
	case ActionEnter:
		d.stack = append(d.stack, newFrame(st.child, st.attach))
		return nil

	case ActionSetScalar, ActionSelect:
		text, err := d.readText()
		if err != nil {
			return err
		}
		d.depth--
		st.set(&d.stack[len(d.stack)-1], text)
		return nil

	default:
		if parent == frameOutside {
			return nil
		}
		if err := d.xd.Skip(); err != nil {
			return err
		}
		d.depth--
		return nil
	}
}

// end pops the frame closed by an end tag, if any, and returns the citation
// when a record completes.
func (d *Decoder) end() *domain.Citation {
	n := len(d.stack)
	if n == 0 {
		return nil
	}

	top := d.stack[n-1]
	d.stack[n-1] = frame{}
	d.stack = d.stack[:n-1]

	if top.kind == frameCitation {
		return top.citation
	}
	if top.attach != nil && n > 1 {
		top.attach(&d.stack[n-2], &top)
	}
	return nil
}

// readText collects the character data of the current element, including
// text nested in inline markup such as <i> or <sup>, and consumes its end tag.
func (d *Decoder) readText() (string, error) {
	var b strings.Builder
	for depth := 1; depth > 0; {
		tok, err := d.xd.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func (d *Decoder) finish() error {
	switch {
	case !d.sawRoot:
		return d.fail(errors.New("document has no root element"))
	case d.depth != 0 || len(d.stack) != 0:
		return d.fail(io.ErrUnexpectedEOF)
	}
	d.err = io.EOF
	return io.EOF
}

func (d *Decoder) fail(cause error) error {
	d.stack = d.stack[:0]
	d.err = domain.NewFatalParseError(d.xd.InputOffset(), cause)
	return d.err
}
