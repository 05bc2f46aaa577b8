package medline

import (
	"fmt"
	"io"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// charsetReader transcodes documents whose XML declaration names an encoding
// other than UTF-8. Older dumps declare ISO-8859-1 or US-ASCII.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported document encoding %q: %w", label, err)
	}
	if enc == unicode.UTF8 {
		return input, nil
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
