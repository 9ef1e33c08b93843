package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/pagebeacon/metadata"
)

// ErrCrossOrigin marks a top-level document that the same-origin policy
// makes unreachable from the embedded page.
var ErrCrossOrigin = errors.New("browser: top-level document is cross-origin")

// Tab wraps a Rod page as a beacon execution context. It implements the
// pagebeacon.Page interface; its documents evaluate JS against either the
// page's own document or the top-level ancestor.
type Tab struct {
	page    *rod.Page
	PageURL string
	manager *Manager
}

// OpenTab creates a stealth tab and navigates to pageURL. Navigation only;
// the beacon's readiness state performs the load wait.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}

	return &Tab{page: page, PageURL: pageURL, manager: mgr}, nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.page != nil {
		return t.page.Close()
	}
	return nil
}

// Document returns the tab's own document view.
func (t *Tab) Document() metadata.Document {
	return &doc{page: t.page, scope: "document", locExpr: "location.href"}
}

// Embedded reports whether the page runs inside another frame.
func (t *Tab) Embedded() bool {
	res, err := t.page.Eval(`() => window.self !== window.top`)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

// TopDocument probes access to the top-level ancestor document. The
// same-origin policy makes a cross-origin ancestor throw a SecurityError,
// surfaced here as ErrCrossOrigin.
func (t *Tab) TopDocument(ctx context.Context) (metadata.Document, error) {
	_, err := t.page.Context(ctx).Eval(`() => window.top.document.readyState`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrossOrigin, err)
	}
	return &doc{
		page:    t.page,
		scope:   "window.top.document",
		locExpr: "window.top.location.href",
	}, nil
}

// WaitReady blocks until the page's load event has fired. The readiness
// state is checked first so a page that finished loading before the beacon
// attached does not wait for an event that already happened.
func (t *Tab) WaitReady(ctx context.Context) error {
	res, err := t.page.Context(ctx).Eval(`() => document.readyState`)
	if err == nil && res.Value.Str() == "complete" {
		return nil
	}
	if err := t.page.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load: %w", err)
	}
	return nil
}

// doc evaluates metadata reads against one document scope. scope is either
// "document" or "window.top.document"; a cross-origin scope never reaches
// here because TopDocument probes access first.
type doc struct {
	page    *rod.Page
	scope   string
	locExpr string
}

func (d *doc) evalString(js string, args ...any) string {
	res, err := d.page.Eval(js, args...)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

func (d *doc) MetaName(name string) string {
	return d.MetaNameAttr(name, "content")
}

func (d *doc) MetaNameAttr(name, attr string) string {
	js := fmt.Sprintf(`(name, attr) => {
		const el = %s.querySelector('meta[name="' + name + '"]');
		return el ? (el.getAttribute(attr) || "") : "";
	}`, d.scope)
	return d.evalString(js, name, attr)
}

func (d *doc) MetaProperty(property string) string {
	js := fmt.Sprintf(`(property) => {
		const el = %s.querySelector('meta[property="' + property + '"]');
		return el ? (el.getAttribute("content") || "") : "";
	}`, d.scope)
	return d.evalString(js, property)
}

func (d *doc) CanonicalURL() string {
	js := fmt.Sprintf(`() => {
		const el = %s.querySelector('link[rel="canonical"]');
		return el ? (el.getAttribute("href") || "") : "";
	}`, d.scope)
	return d.evalString(js)
}

func (d *doc) Title() string {
	return d.evalString(fmt.Sprintf(`() => %s.title || ""`, d.scope))
}

func (d *doc) Location() string {
	return d.evalString(fmt.Sprintf(`() => %s`, d.locExpr))
}

// CanvasDataURL snapshots the first canvas on the page. A tainted canvas
// (cross-origin pixels) throws on toDataURL; that reads as no snapshot.
func (d *doc) CanvasDataURL() string {
	js := fmt.Sprintf(`() => {
		const c = %s.querySelector("canvas");
		if (!c || !c.toDataURL) return "";
		try { return c.toDataURL(); } catch (e) { return ""; }
	}`, d.scope)
	return d.evalString(js)
}
