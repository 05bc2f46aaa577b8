// Package source opens load inputs and transparently gunzips compressed
// dumps. Inputs are local files, standard input, S3 objects or PMID lists
// fetched from PubMed.
package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/pgzip"

	"github.com/helixir/medline-loader/internal/observability"
)

// Input schemes, also used as the bytes-read metric label.
const (
	SchemeFile  = "file"
	SchemeStdin = "stdin"
	SchemeS3    = "s3"
)

// StdinName is the input name that reads standard input.
const StdinName = "-"

var gzipMagic = []byte{0x1f, 0x8b}

// ErrNoS3Client is returned when an s3:// input is opened without a client.
var ErrNoS3Client = errors.New("s3 input requires an s3 client")

// ObjectGetter fetches S3 objects. *s3.Client satisfies it.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Input is an opened, decompressed document stream.
type Input struct {
	// Name is the input as given on the command line.
	Name string
	// Scheme is one of SchemeFile, SchemeStdin, SchemeS3, SchemePubMed.
	Scheme string
	// Compressed reports whether the stream was gunzipped.
	Compressed bool

	r       io.Reader
	closers []io.Closer
}

// Read implements io.Reader.
func (in *Input) Read(p []byte) (int, error) {
	return in.r.Read(p)
}

// Close releases the decompressor and the underlying stream.
func (in *Input) Close() error {
	var errs []error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Opener resolves input names to streams.
type Opener struct {
	s3      ObjectGetter
	efetch  Fetcher
	stdin   io.Reader
	metrics *observability.Metrics
}

// Option configures an Opener.
type Option func(*Opener)

// WithS3 enables s3://bucket/key inputs.
func WithS3(client ObjectGetter) Option {
	return func(o *Opener) {
		o.s3 = client
	}
}

// WithEFetch enables pubmed:PMID[,PMID...] inputs.
func WithEFetch(f Fetcher) Option {
	return func(o *Opener) {
		o.efetch = f
	}
}

// WithStdin replaces os.Stdin as the stream behind "-".
func WithStdin(r io.Reader) Option {
	return func(o *Opener) {
		o.stdin = r
	}
}

// WithMetrics counts compressed bytes read per scheme.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Opener) {
		o.metrics = m
	}
}

// NewOpener creates an Opener.
func NewOpener(opts ...Option) *Opener {
	o := &Opener{stdin: os.Stdin}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open opens name, which is "-" for standard input, s3://bucket/key for an
// S3 object, pubmed:PMID[,PMID...] for an efetch download, or a local path. Gzip streams are detected by their magic bytes.
func (o *Opener) Open(ctx context.Context, name string) (*Input, error) {
	in := &Input{Name: name}

	var raw io.Reader
	switch {
	case name == StdinName:
		in.Scheme = SchemeStdin
		raw = o.stdin

	case strings.HasPrefix(name, "s3://"):
		in.Scheme = SchemeS3
		body, err := o.openS3(ctx, name)
		if err != nil {
			return nil, err
		}
		in.closers = append(in.closers, body)
		raw = body

	case strings.HasPrefix(name, SchemePubMed+":"):
		in.Scheme = SchemePubMed
		body, err := o.openPubMed(ctx, name)
		if err != nil {
			return nil, err
		}
		in.closers = append(in.closers, body)
		raw = body

	default:
		in.Scheme = SchemeFile
		f, err := os.Open(name)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		in.closers = append(in.closers, f)
		raw = f
	}

	if o.metrics != nil {
		raw = &countingReader{r: raw, scheme: in.Scheme, metrics: o.metrics}
	}

	br := bufio.NewReaderSize(raw, 64*1024)
	magic, err := br.Peek(len(gzipMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		_ = in.Close()
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(magic) == len(gzipMagic) && magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1] {
		zr, err := pgzip.NewReader(br)
		if err != nil {
			_ = in.Close()
			return nil, fmt.Errorf("gunzip %s: %w", name, err)
		}
		in.Compressed = true
		in.closers = append(in.closers, zr)
		in.r = zr
		return in, nil
	}

	in.r = br
	return in, nil
}

func (o *Opener) openS3(ctx context.Context, name string) (io.ReadCloser, error) {
	if o.s3 == nil {
		return nil, ErrNoS3Client
	}
	bucket, key, err := ParseS3URI(name)
	if err != nil {
		return nil, err
	}
	out, err := o.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("get s3 object %s: %w", name, err)
	}
	return out.Body, nil
}

func (o *Opener) openPubMed(ctx context.Context, name string) (io.ReadCloser, error) {
	if o.efetch == nil {
		return nil, ErrNoEFetch
	}
	pmids, err := ParsePubMedInput(name)
	if err != nil {
		return nil, err
	}
	body, err := o.efetch.Fetch(ctx, pmids)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	return body, nil
}

// ParseS3URI splits s3://bucket/key into its bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 uri %q needs a bucket and a key", uri)
	}
	return bucket, key, nil
}

type countingReader struct {
	r       io.Reader
	scheme  string
	metrics *observability.Metrics
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.metrics.RecordBytesRead(c.scheme, n)
	}
	return n, err
}
