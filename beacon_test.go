package pagebeacon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hazyhaar/pagebeacon/internal/htmldoc"
	"github.com/hazyhaar/pagebeacon/metadata"
)

const completePage = `<!DOCTYPE html>
<html>
<head>
<title>Top Title</title>
<meta name="application-name" content="Top App">
<meta name="description" content="top description">
<meta property="og:url" content="https://top.example/page">
<meta property="og:image" content="https://top.example/img.png">
</head>
<body></body>
</html>`

func parseDoc(t *testing.T, raw, location string) metadata.Document {
	t.Helper()
	d, err := htmldoc.Parse([]byte(raw), location)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// fakePage scripts the frame and readiness behaviour around a document.
type fakePage struct {
	doc      metadata.Document
	embedded bool
	top      metadata.Document
	topErr   error
	topCalls atomic.Int64
	readyErr error
}

func (p *fakePage) Document() metadata.Document { return p.doc }
func (p *fakePage) Embedded() bool              { return p.embedded }
func (p *fakePage) TopDocument(context.Context) (metadata.Document, error) {
	p.topCalls.Add(1)
	if p.topErr != nil {
		return nil, p.topErr
	}
	return p.top, nil
}
func (p *fakePage) WaitReady(context.Context) error { return p.readyErr }

// relayRecorder is an httptest relay that counts and captures PUTs.
type relayRecorder struct {
	srv   *httptest.Server
	calls atomic.Int64
	last  atomic.Value // []byte body
	path  atomic.Value // string
}

func newRelayRecorder(t *testing.T) *relayRecorder {
	t.Helper()
	r := &relayRecorder{}
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.calls.Add(1)
		body, _ := io.ReadAll(req.Body)
		r.last.Store(body)
		r.path.Store(req.Method + " " + req.URL.Path)
	}))
	t.Cleanup(r.srv.Close)
	return r
}

func (r *relayRecorder) lastBody() []byte {
	b, _ := r.last.Load().([]byte)
	return b
}

func quiet() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestSignal_Success(t *testing.T) {
	relay := newRelayRecorder(t)
	page := &fakePage{doc: parseDoc(t, completePage, "https://top.example/live")}

	b := New(page, Config{RelayURL: relay.srv.URL}, WithLogger(quiet()))
	res, err := b.Signal(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeSent {
		t.Fatalf("outcome: got %q (%s)", res.Outcome, res.Diagnostic)
	}
	if relay.calls.Load() != 1 {
		t.Fatalf("relay calls: got %d, want 1", relay.calls.Load())
	}
	if got := relay.path.Load().(string); got != "PUT /beacon" {
		t.Errorf("request: got %q", got)
	}

	var body map[string]any
	if err := json.Unmarshal(relay.last.Load().([]byte), &body); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"url":         "https://top.example/page",
		"name":        "Top App",
		"description": "top description",
		"active":      true,
		"image":       "https://top.example/img.png",
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("payload[%q]: got %v, want %v", k, body[k], v)
		}
	}
}

func TestSignal_MalformedDescriptionAttributeOnWire(t *testing.T) {
	// The description meta carries both the malformed description
	// attribute and a well-formed content attribute; the malformed one
	// must win all the way to the transmitted payload.
	const page = `<!DOCTYPE html>
<html>
<head>
<title>Attr Page</title>
<meta name="application-name" content="Attr App">
<meta name="description" description="from malformed attribute" content="from content attribute">
<meta property="og:url" content="https://attr.example/page">
<meta property="og:image" content="https://attr.example/img.png">
</head>
<body></body>
</html>`

	relay := newRelayRecorder(t)
	p := &fakePage{doc: parseDoc(t, page, "https://attr.example/page")}

	b := New(p, Config{RelayURL: relay.srv.URL}, WithLogger(quiet()))
	res, err := b.Signal(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeSent {
		t.Fatalf("outcome: got %q (%s)", res.Outcome, res.Diagnostic)
	}
	if relay.calls.Load() != 1 {
		t.Fatalf("relay calls: got %d, want 1", relay.calls.Load())
	}
	if got := relay.path.Load().(string); got != "PUT /beacon" {
		t.Errorf("request: got %q", got)
	}

	var body map[string]any
	if err := json.Unmarshal(relay.lastBody(), &body); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"url":         "https://attr.example/page",
		"name":        "Attr App",
		"description": "from malformed attribute",
		"active":      true,
		"image":       "https://attr.example/img.png",
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("payload[%q]: got %v, want %v", k, body[k], v)
		}
	}
}

func TestSignal_MissingFieldAbortsWithoutTransport(t *testing.T) {
	// Each variant lacks every source for one field. Image is absent from
	// the list: the sentinel means it always resolves.
	variants := map[string]struct {
		raw      string
		location string
	}{
		"no name": {
			raw: `<head>
<meta name="description" content="d">
<meta property="og:url" content="https://x.example">
<meta property="og:image" content="https://x.example/i.png">
</head>`,
		},
		"no url": {
			raw: `<head>
<title>T</title>
<meta name="description" content="d">
<meta property="og:image" content="https://x.example/i.png">
</head>`,
		},
		"no description": {
			raw: `<head>
<title>T</title>
<meta property="og:url" content="https://x.example">
<meta property="og:image" content="https://x.example/i.png">
</head>`,
			location: "https://x.example/loc",
		},
	}

	for label, v := range variants {
		relay := newRelayRecorder(t)
		page := &fakePage{doc: parseDoc(t, v.raw, v.location)}

		b := New(page, Config{RelayURL: relay.srv.URL}, WithLogger(quiet()))
		res, err := b.Signal(context.Background())
		if err != nil {
			t.Fatalf("%s: %v", label, err)
		}
		if res.Outcome != OutcomeAborted || res.Reason != ReasonIncompleteMetadata {
			t.Errorf("%s: got outcome %q reason %q", label, res.Outcome, res.Reason)
		}
		if relay.calls.Load() != 0 {
			t.Errorf("%s: relay received %d calls, want 0", label, relay.calls.Load())
		}
		if !strings.Contains(res.Diagnostic, "missing") {
			t.Errorf("%s: diagnostic %q does not name missing fields", label, res.Diagnostic)
		}
	}
}

func TestSignal_EmptyDescriptionNeverTransmits(t *testing.T) {
	// Complete except for any description source: resolver yields "",
	// validation must still abort.
	raw := `<head>
<title>T</title>
<meta property="og:url" content="https://x.example">
<meta property="og:image" content="https://x.example/i.png">
</head>`
	relay := newRelayRecorder(t)
	page := &fakePage{doc: parseDoc(t, raw, "https://x.example/loc")}

	b := New(page, Config{RelayURL: relay.srv.URL}, WithLogger(quiet()))
	res, _ := b.Signal(context.Background())
	if res.Outcome != OutcomeAborted {
		t.Fatalf("outcome: got %q", res.Outcome)
	}
	if !strings.Contains(res.Diagnostic, "description") {
		t.Errorf("diagnostic %q does not mention description", res.Diagnostic)
	}
	if relay.calls.Load() != 0 {
		t.Errorf("relay calls: got %d, want 0", relay.calls.Load())
	}
}

func TestSignal_NameOverrideWins(t *testing.T) {
	relay := newRelayRecorder(t)
	page := &fakePage{doc: parseDoc(t, completePage, "")}

	b := New(page, Config{
		RelayURL:  relay.srv.URL,
		Overrides: metadata.Overrides{Name: "Configured Name"},
	}, WithLogger(quiet()))

	res, err := b.Signal(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Metadata.Name != "Configured Name" {
		t.Errorf("name: got %q, want the override", res.Metadata.Name)
	}
}

func TestSignal_SameOriginFrameUsesTopDocument(t *testing.T) {
	childPage := `<head><title>Child</title></head>`
	relay := newRelayRecorder(t)
	page := &fakePage{
		doc:      parseDoc(t, childPage, "https://top.example/child-frame"),
		embedded: true,
		top:      parseDoc(t, completePage, "https://top.example/live"),
	}

	b := New(page, Config{RelayURL: relay.srv.URL}, WithLogger(quiet()))
	res, err := b.Signal(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeSent {
		t.Fatalf("outcome: got %q (%s)", res.Outcome, res.Diagnostic)
	}
	if res.Metadata.URL != "https://top.example/page" {
		t.Errorf("url: got %q, want the top-level page url", res.Metadata.URL)
	}
}

func TestSignal_CrossOriginFrameAborts(t *testing.T) {
	relay := newRelayRecorder(t)
	page := &fakePage{
		doc:      parseDoc(t, completePage, "https://child.example/frame"),
		embedded: true,
		topErr:   errors.New("SecurityError: blocked a frame from accessing a cross-origin frame"),
	}

	b := New(page, Config{RelayURL: relay.srv.URL}, WithLogger(quiet()))
	res, err := b.Signal(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeAborted || res.Reason != ReasonFrameAccess {
		t.Errorf("got outcome %q reason %q", res.Outcome, res.Reason)
	}
	// No fallback to the child's own (complete) metadata.
	if relay.calls.Load() != 0 {
		t.Errorf("relay calls: got %d, want 0", relay.calls.Load())
	}
}

func TestSignal_TopDocumentRetainedAcrossInvocations(t *testing.T) {
	relay := newRelayRecorder(t)
	page := &fakePage{
		doc:      parseDoc(t, `<head></head>`, "https://top.example/frame"),
		embedded: true,
		top:      parseDoc(t, completePage, "https://top.example/live"),
	}

	b := New(page, Config{RelayURL: relay.srv.URL}, WithLogger(quiet()))
	for i := 0; i < 3; i++ {
		if res, err := b.Signal(context.Background()); err != nil || res.Outcome != OutcomeSent {
			t.Fatalf("invocation %d: outcome %v err %v", i, res.Outcome, err)
		}
	}
	if got := page.topCalls.Load(); got != 1 {
		t.Errorf("TopDocument calls: got %d, want 1 (retained handle)", got)
	}
	if relay.calls.Load() != 3 {
		t.Errorf("relay calls: got %d, want 3", relay.calls.Load())
	}
}

func TestSignal_Disabled(t *testing.T) {
	relay := newRelayRecorder(t)

	// Missing relay URL.
	b := New(&fakePage{doc: parseDoc(t, completePage, "")}, Config{}, WithLogger(quiet()))
	res, err := b.Signal(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeDisabled || res.Reason != ReasonConfig {
		t.Errorf("no relay URL: got outcome %q reason %q", res.Outcome, res.Reason)
	}

	// Missing page context.
	b = New(nil, Config{RelayURL: relay.srv.URL}, WithLogger(quiet()))
	if res, _ := b.Signal(context.Background()); res.Outcome != OutcomeDisabled {
		t.Errorf("nil page: got outcome %q", res.Outcome)
	}

	if relay.calls.Load() != 0 {
		t.Errorf("disabled beacons reached the relay: %d calls", relay.calls.Load())
	}
}

func TestSignal_TransportErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	page := &fakePage{doc: parseDoc(t, completePage, "")}
	b := New(page, Config{RelayURL: srv.URL}, WithLogger(quiet()))

	res, err := b.Signal(context.Background())
	if err == nil {
		t.Fatal("transport failure did not propagate")
	}
	if res.Outcome != OutcomeAborted || res.Reason != ReasonTransport {
		t.Errorf("got outcome %q reason %q", res.Outcome, res.Reason)
	}
}

func TestSignal_ReadinessFailureAborts(t *testing.T) {
	relay := newRelayRecorder(t)
	page := &fakePage{
		doc:      parseDoc(t, completePage, ""),
		readyErr: context.Canceled,
	}

	b := New(page, Config{RelayURL: relay.srv.URL}, WithLogger(quiet()))
	res, err := b.Signal(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeAborted || res.Reason != ReasonNotReady {
		t.Errorf("got outcome %q reason %q", res.Outcome, res.Reason)
	}
	if relay.calls.Load() != 0 {
		t.Errorf("relay calls: got %d, want 0", relay.calls.Load())
	}
}

func TestStaticPage_NeverEmbedded(t *testing.T) {
	doc := parseDoc(t, completePage, "https://x.example")
	p := StaticPage{Doc: doc}
	if p.Embedded() {
		t.Error("static page reported embedded")
	}
	if err := p.WaitReady(context.Background()); err != nil {
		t.Errorf("WaitReady: %v", err)
	}
	top, err := p.TopDocument(context.Background())
	if err != nil || top != doc {
		t.Errorf("TopDocument: got %v, %v", top, err)
	}
}
