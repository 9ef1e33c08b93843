package metadata

import (
	"strings"
	"testing"
)

// fakeDoc is a map-backed Document for resolver tests.
type fakeDoc struct {
	metaName     map[string]string // name -> content
	metaAttr     map[string]string // name "\x00" attr -> value
	metaProperty map[string]string // property -> content
	canonical    string
	title        string
	location     string
	canvas       string
}

func (d *fakeDoc) MetaName(name string) string { return d.metaName[name] }
func (d *fakeDoc) MetaNameAttr(name, attr string) string {
	return d.metaAttr[name+"\x00"+attr]
}
func (d *fakeDoc) MetaProperty(property string) string { return d.metaProperty[property] }
func (d *fakeDoc) CanonicalURL() string                { return d.canonical }
func (d *fakeDoc) Title() string                       { return d.title }
func (d *fakeDoc) Location() string                    { return d.location }
func (d *fakeDoc) CanvasDataURL() string               { return d.canvas }

func fullDoc() *fakeDoc {
	return &fakeDoc{
		metaName: map[string]string{
			"application-name": "App Name",
			"description":      "well-formed description",
		},
		metaAttr: map[string]string{},
		metaProperty: map[string]string{
			"og:url":         "https://example.com/og",
			"og:description": "og description",
			"og:image":       "https://example.com/img.png",
		},
		canonical: "https://example.com/canonical",
		title:     "Title Text",
		location:  "https://example.com/location",
		canvas:    "data:image/png;base64,AAAA",
	}
}

func TestResolveURL_Priority(t *testing.T) {
	doc := fullDoc()
	if got := Resolve(doc, Overrides{}).URL; got != "https://example.com/og" {
		t.Errorf("url: got %q, want og:url", got)
	}

	delete(doc.metaProperty, "og:url")
	if got := Resolve(doc, Overrides{}).URL; got != "https://example.com/canonical" {
		t.Errorf("url: got %q, want canonical", got)
	}

	doc.canonical = ""
	if got := Resolve(doc, Overrides{}).URL; got != "https://example.com/location" {
		t.Errorf("url: got %q, want location", got)
	}
}

func TestResolveName_Priority(t *testing.T) {
	doc := fullDoc()

	got := Resolve(doc, Overrides{Name: "Override"}).Name
	if got != "Override" {
		t.Errorf("name: got %q, want override regardless of tags", got)
	}

	if got := Resolve(doc, Overrides{}).Name; got != "App Name" {
		t.Errorf("name: got %q, want application-name content", got)
	}

	delete(doc.metaName, "application-name")
	if got := Resolve(doc, Overrides{}).Name; got != "Title Text" {
		t.Errorf("name: got %q, want title", got)
	}
}

func TestResolveDescription_MalformedAttrWins(t *testing.T) {
	doc := fullDoc()
	doc.metaAttr["description\x00description"] = "malformed attr value"

	got := Resolve(doc, Overrides{}).Description
	if got != "malformed attr value" {
		t.Errorf("description: got %q, want the malformed attribute value over content", got)
	}
}

func TestResolveDescription_Priority(t *testing.T) {
	doc := fullDoc()

	got := Resolve(doc, Overrides{Description: "override desc"}).Description
	if got != "override desc" {
		t.Errorf("description: got %q, want override", got)
	}

	if got := Resolve(doc, Overrides{}).Description; got != "well-formed description" {
		t.Errorf("description: got %q, want content attribute", got)
	}

	delete(doc.metaName, "description")
	if got := Resolve(doc, Overrides{}).Description; got != "og description" {
		t.Errorf("description: got %q, want og:description", got)
	}
}

func TestResolveDescription_EmptyFallback(t *testing.T) {
	doc := fullDoc()
	delete(doc.metaName, "description")
	delete(doc.metaProperty, "og:description")

	r := Resolve(doc, Overrides{})
	if r.Description != "" {
		t.Errorf("description: got %q, want empty string", r.Description)
	}

	// Empty description still fails completeness.
	if r.Complete() {
		t.Error("resolved metadata with empty description reported complete")
	}
	missing := r.Missing()
	found := false
	for _, f := range missing {
		if f == "description" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing fields %v do not include description", missing)
	}
}

func TestResolveImage_Priority(t *testing.T) {
	doc := fullDoc()
	if got := Resolve(doc, Overrides{}).Image; got != "https://example.com/img.png" {
		t.Errorf("image: got %q, want og:image", got)
	}

	delete(doc.metaProperty, "og:image")
	got := Resolve(doc, Overrides{}).Image
	if !strings.HasPrefix(got, "data:image/") {
		t.Errorf("image: got %q, want canvas data URL", got)
	}

	doc.canvas = ""
	if got := Resolve(doc, Overrides{}).Image; got != ImageFallback {
		t.Errorf("image: got %q, want sentinel %q", got, ImageFallback)
	}
}

func TestMissing_Order(t *testing.T) {
	r := Resolved{}
	want := []string{"url", "name", "description", "image"}
	got := r.Missing()
	if len(got) != len(want) {
		t.Fatalf("missing: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("missing[%d]: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSourceHint_KnownFields(t *testing.T) {
	for _, f := range []string{"url", "name", "description", "image"} {
		if SourceHint(f) == f {
			t.Errorf("SourceHint(%q) has no hint", f)
		}
	}
}
