package pagebeacon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hazyhaar/pagebeacon/internal/config"
	"github.com/hazyhaar/pagebeacon/metadata"
)

func pageServer(t *testing.T, raw string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(raw))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunnerSignalOnceStatic(t *testing.T) {
	page := pageServer(t, completePage)
	rec := newRelayRecorder(t)

	cfg := &config.Config{Relay: config.RelayConfig{URL: rec.srv.URL}}
	cfg.ApplyDefaults()

	r := NewRunner(cfg, WithRunnerLogger(quiet()))

	res, err := r.SignalOnce(context.Background(), page.URL, "static", metadata.Overrides{})
	if err != nil {
		t.Fatalf("SignalOnce: %v", err)
	}
	if res.Outcome != OutcomeSent {
		t.Fatalf("outcome = %q, want %q (reason %q: %s)", res.Outcome, OutcomeSent, res.Reason, res.Diagnostic)
	}
	if rec.calls.Load() != 1 {
		t.Fatalf("relay calls = %d, want 1", rec.calls.Load())
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.lastBody(), &payload); err != nil {
		t.Fatal(err)
	}
	// The page's own og:url wins over the fetch URL.
	if payload["url"] != "https://top.example/page" {
		t.Fatalf("payload url = %v", payload["url"])
	}
	if payload["active"] != true {
		t.Fatalf("payload active = %v", payload["active"])
	}
}

func TestRunnerSignalOnceIncomplete(t *testing.T) {
	page := pageServer(t, `<!DOCTYPE html><html><head><title>Bare</title></head><body></body></html>`)
	rec := newRelayRecorder(t)

	cfg := &config.Config{Relay: config.RelayConfig{URL: rec.srv.URL}}
	cfg.ApplyDefaults()

	r := NewRunner(cfg, WithRunnerLogger(quiet()))

	res, err := r.SignalOnce(context.Background(), page.URL, "static", metadata.Overrides{})
	if err != nil {
		t.Fatalf("SignalOnce: %v", err)
	}
	if res.Outcome != OutcomeAborted || res.Reason != ReasonIncompleteMetadata {
		t.Fatalf("res = %+v", res)
	}
	if rec.calls.Load() != 0 {
		t.Fatalf("relay calls = %d, want 0", rec.calls.Load())
	}
}

func TestRunnerSignalOnceOverrides(t *testing.T) {
	page := pageServer(t, completePage)
	rec := newRelayRecorder(t)

	cfg := &config.Config{Relay: config.RelayConfig{URL: rec.srv.URL}}
	cfg.ApplyDefaults()

	r := NewRunner(cfg, WithRunnerLogger(quiet()))

	res, err := r.SignalOnce(context.Background(), page.URL, "static",
		metadata.Overrides{Name: "Override Name"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeSent {
		t.Fatalf("outcome = %q", res.Outcome)
	}

	var payload map[string]any
	json.Unmarshal(rec.lastBody(), &payload)
	if payload["name"] != "Override Name" {
		t.Fatalf("payload name = %v", payload["name"])
	}
}

func TestRunnerResolveOnce(t *testing.T) {
	page := pageServer(t, completePage)

	cfg := &config.Config{}
	cfg.ApplyDefaults()

	r := NewRunner(cfg, WithRunnerLogger(quiet()))

	resolved, err := r.ResolveOnce(context.Background(), page.URL, "static", metadata.Overrides{})
	if err != nil {
		t.Fatalf("ResolveOnce: %v", err)
	}
	if resolved.Name != "Top App" || resolved.Description != "top description" {
		t.Fatalf("resolved = %+v", resolved)
	}
	if !resolved.Complete() {
		t.Fatalf("Missing() = %v", resolved.Missing())
	}
}

func TestRunnerRunSignalsConfiguredPages(t *testing.T) {
	page := pageServer(t, completePage)
	rec := newRelayRecorder(t)

	cfg := &config.Config{
		Relay:    config.RelayConfig{URL: rec.srv.URL},
		Pages:    []config.PageConfig{{ID: "p1", URL: page.URL, Source: "static"}},
		Interval: config.Duration(time.Hour),
	}
	cfg.ApplyDefaults()

	results := make(chan Result, 1)
	r := NewRunner(cfg,
		WithRunnerLogger(quiet()),
		WithResultFunc(func(pageID string, res Result, err error) {
			if pageID == "p1" && err == nil {
				select {
				case results <- res:
				default:
				}
			}
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case res := <-results:
		if res.Outcome != OutcomeSent {
			t.Errorf("outcome = %q, want %q", res.Outcome, OutcomeSent)
		}
	case <-time.After(5 * time.Second):
		t.Error("no signal result within 5s")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if rec.calls.Load() != 1 {
		t.Fatalf("relay calls = %d, want 1", rec.calls.Load())
	}
}

func TestRunnerReportsGeneratedPageID(t *testing.T) {
	page := pageServer(t, completePage)
	rec := newRelayRecorder(t)

	cfg := &config.Config{
		Relay:    config.RelayConfig{URL: rec.srv.URL},
		Pages:    []config.PageConfig{{URL: page.URL, Source: "static"}},
		Interval: config.Duration(time.Hour),
	}
	cfg.ApplyDefaults()

	ids := make(chan string, 1)
	r := NewRunner(cfg,
		WithRunnerLogger(quiet()),
		WithResultFunc(func(pageID string, _ Result, err error) {
			if err == nil {
				select {
				case ids <- pageID:
				default:
				}
			}
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case id := <-ids:
		if id == "" {
			t.Error("result callback got empty page id")
		}
	case <-time.After(5 * time.Second):
		t.Error("no signal result within 5s")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunnerUnknownSource(t *testing.T) {
	cfg := &config.Config{Relay: config.RelayConfig{URL: "http://relay.invalid"}}
	cfg.ApplyDefaults()

	r := NewRunner(cfg, WithRunnerLogger(quiet()))

	_, err := r.SignalOnce(context.Background(), "http://page.invalid", "teleport", metadata.Overrides{})
	if err == nil {
		t.Fatal("expected error for unknown source")
	}
}
