package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

// SchemePubMed names inputs of the form pubmed:PMID[,PMID...], fetched
// from NCBI E-utilities as a PubmedArticleSet document.
const SchemePubMed = "pubmed"

const (
	// DefaultEUtilsURL is the NCBI E-utilities base URL.
	DefaultEUtilsURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// NCBI allows 3 requests per second without an API key and 10 with one.
	defaultEUtilsRate      = 3.0
	defaultEUtilsKeyedRate = 10.0

	// maxEFetchIDs is the documented efetch limit for a GET request.
	maxEFetchIDs = 200
)

// ErrNoEFetch is returned when a pubmed: input is opened without a client.
var ErrNoEFetch = errors.New("pubmed input requires an efetch client")

// Fetcher streams the efetch XML for a set of PMIDs.
type Fetcher interface {
	Fetch(ctx context.Context, pmids []int64) (io.ReadCloser, error)
}

// EFetchConfig configures an EFetchClient.
type EFetchConfig struct {
	// BaseURL defaults to DefaultEUtilsURL.
	BaseURL string
	// APIKey raises the NCBI rate limit.
	APIKey string
	// Tool and Email identify the caller to NCBI.
	Tool  string
	Email string

	// RateLimit defaults to 3/s, or 10/s with an API key.
	RateLimit float64
	// Timeout bounds each attempt up to the response headers. The body is
	// streamed into the decoder for as long as the run takes and is bounded
	// only by the caller's context.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt. Zero
	// disables retrying.
	MaxRetries int
	RetryDelay time.Duration
}

func (c *EFetchConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultEUtilsURL
	}
	if c.RateLimit == 0 {
		c.RateLimit = defaultEUtilsRate
		if c.APIKey != "" {
			c.RateLimit = defaultEUtilsKeyedRate
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
	if c.Tool == "" {
		c.Tool = "medline-loader"
	}
}

// EFetchClient requests citation XML from E-utilities. It waits on a shared
// rate limiter before every attempt and retries 429 and 5xx responses.
// It is safe for concurrent use.
type EFetchClient struct {
	cfg     EFetchConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewEFetchClient creates an EFetchClient.
func NewEFetchClient(cfg EFetchConfig) *EFetchClient {
	cfg.applyDefaults()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout
	return &EFetchClient{
		cfg:     cfg,
		client:  &http.Client{Transport: transport},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
	}
}

// Fetch returns the response body of an efetch request. The body is streamed,
// not buffered, and must be closed by the caller.
func (c *EFetchClient) Fetch(ctx context.Context, pmids []int64) (io.ReadCloser, error) {
	if len(pmids) == 0 {
		return nil, errors.New("efetch needs at least one pmid")
	}
	if len(pmids) > maxEFetchIDs {
		return nil, fmt.Errorf("efetch accepts at most %d pmids, got %d", maxEFetchIDs, len(pmids))
	}

	u, err := url.Parse(c.cfg.BaseURL + "/efetch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("retmode", "xml")
	q.Set("id", strings.Join(lo.Map(pmids, func(id int64, _ int) string {
		return strconv.FormatInt(id, 10)
	}), ","))
	q.Set("tool", c.cfg.Tool)
	if c.cfg.Email != "" {
		q.Set("email", c.cfg.Email)
	}
	if c.cfg.APIKey != "" {
		q.Set("api_key", c.cfg.APIKey)
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.cfg.RetryDelay); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("efetch request failed: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return resp.Body, nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("efetch returned status %d", resp.StatusCode)
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			_ = resp.Body.Close()
			return nil, fmt.Errorf("efetch returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
	}
	return nil, fmt.Errorf("efetch failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}

// ParsePubMedInput extracts the PMIDs from pubmed:PMID[,PMID...]. Duplicates
// are dropped, keeping the first occurrence.
func ParsePubMedInput(name string) ([]int64, error) {
	rest, ok := strings.CutPrefix(name, SchemePubMed+":")
	if !ok {
		return nil, fmt.Errorf("not a pubmed input: %q", name)
	}
	var pmids []int64
	for _, field := range strings.Split(rest, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid pmid %q in %q", field, name)
		}
		pmids = append(pmids, id)
	}
	if len(pmids) == 0 {
		return nil, fmt.Errorf("pubmed input %q lists no pmids", name)
	}
	return lo.Uniq(pmids), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
