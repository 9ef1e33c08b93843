package pagebeacon

import (
	"context"

	"github.com/hazyhaar/pagebeacon/metadata"
)

// Page is the execution context a Beacon runs against: the document it can
// read, its frame situation, and its readiness signal. Implementations wrap
// a live browser tab (internal/browser) or statically acquired HTML
// (StaticPage); tests use in-package fakes.
type Page interface {
	// Document returns the page's own document.
	Document() metadata.Document

	// Embedded reports whether the page runs inside another frame.
	Embedded() bool

	// TopDocument returns the top-level ancestor document. It fails when
	// the ancestor is on a different origin; the platform's same-origin
	// policy makes the handle inaccessible and the beacon must not fall
	// back to the embedded document's own metadata.
	TopDocument(ctx context.Context) (metadata.Document, error)

	// WaitReady blocks until the page's load-completion signal has fired.
	// It returns immediately when the page is already loaded. There is no
	// timeout; cancel ctx to give up on a page that never finishes.
	WaitReady(ctx context.Context) error
}

// StaticPage adapts a statically acquired document to the Page interface.
// Parsed HTML is never embedded and is ready as soon as it is parsed.
type StaticPage struct {
	Doc metadata.Document
}

func (p StaticPage) Document() metadata.Document { return p.Doc }

func (p StaticPage) Embedded() bool { return false }

func (p StaticPage) TopDocument(context.Context) (metadata.Document, error) {
	return p.Doc, nil
}

func (p StaticPage) WaitReady(context.Context) error { return nil }
