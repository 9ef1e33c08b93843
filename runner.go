package pagebeacon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/pagebeacon/idgen"
	"github.com/hazyhaar/pagebeacon/internal/browser"
	"github.com/hazyhaar/pagebeacon/internal/config"
	"github.com/hazyhaar/pagebeacon/internal/fetcher"
	"github.com/hazyhaar/pagebeacon/internal/relay"
	"github.com/hazyhaar/pagebeacon/metadata"
)

// Runner drives periodic presence signaling for configured pages. It owns
// the static fetcher, a lazily started browser, and one relay client shared
// by every beacon. Create one per process.
type Runner struct {
	cfg    *config.Config
	fetch  *fetcher.Fetcher
	relay  *relay.Client
	logger *slog.Logger
	newID  idgen.Generator

	mu  sync.Mutex
	mgr *browser.Manager // started on first browser-source page

	// onResult, when set, observes every signal result (test hook and
	// stdout reporting).
	onResult func(pageID string, res Result, err error)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger sets a custom logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithFetcher sets a custom static fetcher.
func WithFetcher(f *fetcher.Fetcher) RunnerOption {
	return func(r *Runner) { r.fetch = f }
}

// WithResultFunc registers a callback invoked after every signal attempt.
func WithResultFunc(fn func(pageID string, res Result, err error)) RunnerOption {
	return func(r *Runner) { r.onResult = fn }
}

// NewRunner creates a Runner from configuration.
func NewRunner(cfg *config.Config, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg:    cfg,
		logger: slog.Default(),
		newID:  idgen.NanoID(12),
	}
	for _, o := range opts {
		o(r)
	}
	if r.fetch == nil {
		r.fetch = fetcher.New(fetcher.WithLogger(r.logger))
	}
	r.relay = relay.New(cfg.Relay.URL, relay.WithLogger(r.logger))
	return r
}

// Run signals every configured page immediately, then again on each
// interval tick until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	r.signalAll(ctx)

	ticker := time.NewTicker(r.cfg.Interval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.close()
			return ctx.Err()
		case <-ticker.C:
			r.signalAll(ctx)
		}
	}
}

// SignalOnce acquires url through the given source ("static", "browser" or
// "auto") and runs one signal against it. Used by the CLI one-shot mode and
// the MCP surface.
func (r *Runner) SignalOnce(ctx context.Context, pageURL, source string, ov metadata.Overrides) (Result, error) {
	pc := config.PageConfig{
		ID:                  r.newID(),
		URL:                 pageURL,
		Source:              source,
		NameOverride:        ov.Name,
		DescriptionOverride: ov.Description,
	}
	if pc.Source == "" {
		pc.Source = "auto"
	}
	return r.signalPage(ctx, pc)
}

// ResolveOnce acquires url and resolves its metadata without signaling.
func (r *Runner) ResolveOnce(ctx context.Context, pageURL, source string, ov metadata.Overrides) (metadata.Resolved, error) {
	if source == "" {
		source = "auto"
	}
	page, cleanup, err := r.acquire(ctx, config.PageConfig{URL: pageURL, Source: source})
	if err != nil {
		return metadata.Resolved{}, err
	}
	defer cleanup()

	if err := page.WaitReady(ctx); err != nil {
		return metadata.Resolved{}, fmt.Errorf("pagebeacon: readiness wait: %w", err)
	}
	return metadata.Resolve(page.Document(), ov), nil
}

func (r *Runner) signalAll(ctx context.Context) {
	for _, pc := range r.cfg.Pages {
		if ctx.Err() != nil {
			return
		}
		res, err := r.signalPage(ctx, pc)
		if err != nil {
			r.logger.Error("pagebeacon: signal failed",
				"page", pc.URL, "error", err)
		}
		if r.onResult != nil {
			r.onResult(pc.ID, res, err)
		}
	}
}

func (r *Runner) signalPage(ctx context.Context, pc config.PageConfig) (Result, error) {
	page, cleanup, err := r.acquire(ctx, pc)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	b := New(page, Config{
		RelayURL: r.cfg.Relay.URL,
		Overrides: metadata.Overrides{
			Name:        pc.NameOverride,
			Description: pc.DescriptionOverride,
		},
	}, WithLogger(r.logger), WithRelayClient(r.relay))

	return b.Signal(ctx)
}

// acquire selects the document source for one page. "auto" fetches
// statically first and escalates to the browser only when the static HTML
// cannot produce complete metadata.
func (r *Runner) acquire(ctx context.Context, pc config.PageConfig) (Page, func(), error) {
	noop := func() {}

	switch pc.Source {
	case "static":
		res, err := r.fetch.Fetch(ctx, pc.URL)
		if err != nil {
			return nil, noop, err
		}
		return StaticPage{Doc: res.Doc}, noop, nil

	case "browser":
		return r.openTab(ctx, pc.URL)

	case "auto":
		res, err := r.fetch.Fetch(ctx, pc.URL)
		if err != nil {
			r.logger.Warn("pagebeacon: static fetch failed, escalating to browser",
				"url", pc.URL, "error", err)
			return r.openTab(ctx, pc.URL)
		}
		if res.Complete {
			return StaticPage{Doc: res.Doc}, noop, nil
		}
		r.logger.Info("pagebeacon: metadata incomplete via static fetch, escalating to browser",
			"url", pc.URL)
		return r.openTab(ctx, pc.URL)

	default:
		return nil, noop, fmt.Errorf("pagebeacon: unknown source %q", pc.Source)
	}
}

func (r *Runner) openTab(ctx context.Context, pageURL string) (Page, func(), error) {
	mgr, err := r.browserManager(ctx)
	if err != nil {
		return nil, func() {}, err
	}

	tab, err := browser.OpenTab(ctx, mgr, pageURL)
	if err != nil {
		return nil, func() {}, err
	}
	return tab, func() { tab.Close() }, nil
}

func (r *Runner) browserManager(ctx context.Context) (*browser.Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mgr == nil {
		r.mgr = browser.NewManager(browser.Config{
			RemoteURL: r.cfg.Browser.Remote,
			Logger:    r.logger,
		})
	}
	if _, err := r.mgr.Start(ctx); err != nil {
		return nil, fmt.Errorf("pagebeacon: start browser: %w", err)
	}
	return r.mgr, nil
}

func (r *Runner) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mgr != nil {
		r.mgr.Close()
		r.mgr = nil
	}
}
