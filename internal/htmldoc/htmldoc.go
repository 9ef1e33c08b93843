// Package htmldoc adapts statically parsed HTML to the metadata.Document
// interface. It covers pages whose presence tags are server-rendered; pages
// that populate metadata from script need the browser document instead.
//
// A static document cannot rasterise a canvas, so CanvasDataURL always
// returns "" and the resolver falls through to the image sentinel.
package htmldoc

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed, immutable view of one HTML page.
type Document struct {
	location  string
	title     string
	canonical string
	metaNodes map[string]*html.Node // by lowercased name attribute, first wins
	metaProps map[string]string     // by lowercased property attribute -> content
	hasCanvas bool
}

// Parse builds a Document from raw HTML. location is the URL the HTML was
// acquired from; it backs the resolver's final url fallback.
func Parse(raw []byte, location string) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("htmldoc: parse: %w", err)
	}

	d := &Document{
		location:  location,
		metaNodes: make(map[string]*html.Node),
		metaProps: make(map[string]string),
	}
	d.collect(root)
	return d, nil
}

func (d *Document) collect(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Meta:
			if name := attrVal(n, "name"); name != "" {
				key := strings.ToLower(name)
				if _, ok := d.metaNodes[key]; !ok {
					d.metaNodes[key] = n
				}
			}
			if prop := attrVal(n, "property"); prop != "" {
				key := strings.ToLower(prop)
				if _, ok := d.metaProps[key]; !ok {
					d.metaProps[key] = attrVal(n, "content")
				}
			}
		case atom.Link:
			if strings.EqualFold(attrVal(n, "rel"), "canonical") && d.canonical == "" {
				d.canonical = attrVal(n, "href")
			}
		case atom.Title:
			if d.title == "" && n.FirstChild != nil {
				d.title = strings.TrimSpace(n.FirstChild.Data)
			}
		case atom.Canvas:
			d.hasCanvas = true
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.collect(c)
	}
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// MetaName returns the content attribute of <meta name="...">.
func (d *Document) MetaName(name string) string {
	return d.MetaNameAttr(name, "content")
}

// MetaNameAttr returns an arbitrary attribute of <meta name="...">.
func (d *Document) MetaNameAttr(name, attr string) string {
	n, ok := d.metaNodes[strings.ToLower(name)]
	if !ok {
		return ""
	}
	return attrVal(n, attr)
}

// MetaProperty returns the content attribute of <meta property="...">.
func (d *Document) MetaProperty(property string) string {
	return d.metaProps[strings.ToLower(property)]
}

// CanonicalURL returns the href of <link rel="canonical">.
func (d *Document) CanonicalURL() string { return d.canonical }

// Title returns the <title> text.
func (d *Document) Title() string { return d.title }

// Location returns the URL the document was acquired from.
func (d *Document) Location() string { return d.location }

// CanvasDataURL always returns "": parsed HTML has no pixel buffer.
func (d *Document) CanvasDataURL() string { return "" }

// HasCanvas reports whether the page markup contains a canvas element.
// The static path cannot snapshot it, so a canvas on an otherwise
// image-less page is a reason to escalate to the browser source.
func (d *Document) HasCanvas() bool { return d.hasCanvas }
