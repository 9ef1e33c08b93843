// Package metadata resolves page presence metadata from a document.
//
// The resolver is pure: given a Document and construction-time overrides it
// computes the four presence fields (url, name, description, image) using a
// fixed per-field fallback chain. It never touches the network or the clock,
// so it can be run against a live browser page, statically parsed HTML, or a
// synthetic document in tests.
package metadata

// Document is the read-only view of a page the resolver operates on.
// Implementations wrap a live browser tab or statically parsed HTML.
// All methods return "" when the source is absent.
type Document interface {
	// MetaName returns the content attribute of <meta name="...">.
	MetaName(name string) string

	// MetaNameAttr returns an arbitrary attribute of <meta name="...">.
	// Needed for the malformed description variant, where the value sits
	// under a "description" attribute instead of "content".
	MetaNameAttr(name, attr string) string

	// MetaProperty returns the content attribute of <meta property="...">
	// (Open Graph tags).
	MetaProperty(property string) string

	// CanonicalURL returns the href of <link rel="canonical">.
	CanonicalURL() string

	// Title returns the document title.
	Title() string

	// Location returns the document's current location href.
	Location() string

	// CanvasDataURL returns a data-URL snapshot of the first drawable
	// canvas on the page, or "" when the page has none or the source
	// cannot rasterise.
	CanvasDataURL() string
}
