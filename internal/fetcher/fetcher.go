// Package fetcher implements the static acquisition path: a single HTTP GET
// that parses the response into an htmldoc.Document. No browser, no JS.
// Covers pages whose presence tags are server-rendered; the Result's
// completeness signal tells the runner when to escalate to the browser
// source instead.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazyhaar/pagebeacon/internal/htmldoc"
	"github.com/hazyhaar/pagebeacon/metadata"
)

// Result is the outcome of one fetch.
type Result struct {
	Doc        *htmldoc.Document
	StatusCode int

	// Complete is true when all four presence fields resolve from the
	// static HTML alone (no overrides applied). When false, a browser
	// may still succeed: scripts can inject tags, and a canvas can only
	// be snapshotted live.
	Complete bool
}

// Fetcher performs HTTP GETs and produces static documents.
type Fetcher struct {
	client *http.Client
	ua     string
	logger *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.ua = ua }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher with sensible defaults.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		ua:     "Mozilla/5.0 (compatible; PageBeacon/1.0)",
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch GETs pageURL and parses the body. The resulting document's location
// is the requested URL (redirect targets are not chased into the location:
// the beacon reports the address the page is reachable at).
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: do: %w", err)
	}
	defer resp.Body.Close()

	// Cap read to 10MB to prevent runaway downloads.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("fetcher: read body: %w", err)
	}

	doc, err := htmldoc.Parse(body, pageURL)
	if err != nil {
		return nil, err
	}

	complete := metadata.Resolve(doc, metadata.Overrides{}).Complete()
	// A canvas can only be snapshotted live. When it is the page's only
	// image source, the static sentinel would misreport it, so treat the
	// page as incomplete and let the runner escalate.
	if doc.HasCanvas() && doc.MetaProperty("og:image") == "" {
		complete = false
	}

	res := &Result{
		Doc:        doc,
		StatusCode: resp.StatusCode,
		Complete:   complete,
	}

	f.logger.Debug("fetcher: fetched",
		"url", pageURL, "status", resp.StatusCode,
		"size", len(body), "complete", res.Complete)

	return res, nil
}
