package metadata

// ImageFallback is the sentinel reported when a page offers no image source
// at all: no og:image tag and no canvas to snapshot.
const ImageFallback = "#"

// Overrides carries construction-time field overrides. An empty string means
// "not supplied" and the fallback chain for that field runs instead.
type Overrides struct {
	Name        string
	Description string
}

// Resolved holds the computed presence fields. It is recomputed on every
// signal attempt; the controller validates completeness before transmitting.
type Resolved struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// Resolve computes all four presence fields over doc. First matching source
// wins per field; later sources are fallbacks, never merged.
func Resolve(doc Document, ov Overrides) Resolved {
	return Resolved{
		URL:         resolveURL(doc),
		Name:        resolveName(doc, ov.Name),
		Description: resolveDescription(doc, ov.Description),
		Image:       resolveImage(doc),
	}
}

// resolveURL prefers og:url, then the page-declared canonical link, then the
// document location. The caller hands the resolver the frame-resolved
// document, so Location is already the top-level location when the page runs
// inside a same-origin frame.
func resolveURL(doc Document) string {
	if v := doc.MetaProperty("og:url"); v != "" {
		return v
	}
	if v := doc.CanonicalURL(); v != "" {
		return v
	}
	return doc.Location()
}

func resolveName(doc Document, override string) string {
	if override != "" {
		return override
	}
	if v := doc.MetaName("application-name"); v != "" {
		return v
	}
	return doc.Title()
}

// resolveDescription checks the non-standard description="..." attribute on
// the description meta tag before the well-formed content attribute. Pages
// in the wild populate the wrong attribute; checking content first would
// silently lose their descriptions. Description is the one field allowed to
// resolve to "" instead of falling through to a sentinel.
func resolveDescription(doc Document, override string) string {
	if override != "" {
		return override
	}
	if v := doc.MetaNameAttr("description", "description"); v != "" {
		return v
	}
	if v := doc.MetaName("description"); v != "" {
		return v
	}
	return doc.MetaProperty("og:description")
}

func resolveImage(doc Document) string {
	if v := doc.MetaProperty("og:image"); v != "" {
		return v
	}
	if v := doc.CanvasDataURL(); v != "" {
		return v
	}
	return ImageFallback
}

// Missing lists the fields that resolved empty, in a fixed order. An empty
// description counts as missing even though the resolver may legitimately
// produce it; the controller aborts on it like any other absent field.
func (r Resolved) Missing() []string {
	var fields []string
	if r.URL == "" {
		fields = append(fields, "url")
	}
	if r.Name == "" {
		fields = append(fields, "name")
	}
	if r.Description == "" {
		fields = append(fields, "description")
	}
	if r.Image == "" {
		fields = append(fields, "image")
	}
	return fields
}

// Complete reports whether every field resolved non-empty.
func (r Resolved) Complete() bool {
	return r.URL != "" && r.Name != "" && r.Description != "" && r.Image != ""
}

// SourceHint names the page-side sources that can satisfy a field. Used in
// abort diagnostics so page authors know which tags to add.
func SourceHint(field string) string {
	switch field {
	case "url":
		return `meta[property="og:url"], link[rel="canonical"]`
	case "name":
		return `meta[name="application-name"], <title>`
	case "description":
		return `meta[name="description"], meta[property="og:description"]`
	case "image":
		return `meta[property="og:image"], <canvas>`
	}
	return field
}
