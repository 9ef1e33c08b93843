// Package pagebeacon implements a page presence beacon: it resolves a
// page's metadata (url, name, description, image) through a fixed fallback
// chain and reports it to a relay endpoint so the relay can track which
// pages are currently active.
//
// The Beacon is the per-page signal controller. Runner drives many beacons
// from configuration; cmd/pagebeacon is the CLI entry point.
package pagebeacon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hazyhaar/pagebeacon/idgen"
	"github.com/hazyhaar/pagebeacon/internal/relay"
	"github.com/hazyhaar/pagebeacon/internal/signalstate"
	"github.com/hazyhaar/pagebeacon/metadata"
)

// Config carries the construction parameters of a Beacon. RelayURL is
// required: a Beacon built without one is permanently disabled.
type Config struct {
	RelayURL  string
	Overrides metadata.Overrides
}

// Outcome classifies one Signal invocation.
type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeAborted  Outcome = "aborted"
	OutcomeDisabled Outcome = "disabled"
)

// AbortReason identifies why a signal stopped before transmission.
type AbortReason string

const (
	ReasonConfig             AbortReason = "config"
	ReasonNotReady           AbortReason = "not_ready"
	ReasonFrameAccess        AbortReason = "frame_access"
	ReasonIncompleteMetadata AbortReason = "incomplete_metadata"
	ReasonTransport          AbortReason = "transport"
)

// Result reports what one Signal invocation did. Local failures surface
// here as diagnostics, never as errors thrown into the host: only a
// transport failure is additionally returned as an error from Signal.
type Result struct {
	SignalID   string             `json:"signal_id"`
	Outcome    Outcome            `json:"outcome"`
	Reason     AbortReason        `json:"reason,omitempty"`
	Diagnostic string             `json:"diagnostic,omitempty"`
	Metadata   *metadata.Resolved `json:"metadata,omitempty"`
}

// Beacon is the signal controller for one page context. Signal may be
// invoked any number of times; each invocation re-runs the full lifecycle.
type Beacon struct {
	page   Page
	cfg    Config
	client *relay.Client
	logger *slog.Logger
	newID  idgen.Generator

	// disabled is set permanently at construction when preconditions fail.
	disabled string

	// topDoc retains the resolved top-level document across invocations
	// within the same page lifetime. An optimisation, not a correctness
	// requirement: re-resolving yields the same document absent
	// navigation.
	mu     sync.Mutex
	topDoc metadata.Document
}

// Option configures a Beacon.
type Option func(*Beacon)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Beacon) { b.logger = l }
}

// WithRelayClient sets a pre-built relay client (shared across beacons by
// the Runner).
func WithRelayClient(c *relay.Client) Option {
	return func(b *Beacon) { b.client = c }
}

// WithIDGenerator sets a custom generator for signal IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(b *Beacon) { b.newID = gen }
}

// New creates a Beacon for the given page context. A nil page or an empty
// relay URL disables the beacon permanently: every Signal call becomes a
// no-op reporting OutcomeDisabled.
func New(page Page, cfg Config, opts ...Option) *Beacon {
	b := &Beacon{
		page:   page,
		cfg:    cfg,
		logger: slog.Default(),
		newID:  idgen.Prefixed("sig_", idgen.Default),
	}
	for _, o := range opts {
		o(b)
	}

	switch {
	case page == nil:
		b.disabled = "no page context supplied"
	case cfg.RelayURL == "":
		b.disabled = "relay URL is empty"
	}
	if b.disabled != "" {
		b.logger.Warn("pagebeacon: disabled", "diagnostic", b.disabled)
		return b
	}

	if b.client == nil {
		b.client = relay.New(cfg.RelayURL, relay.WithLogger(b.logger))
	}
	return b
}

// Signal runs one full beacon lifecycle: wait for readiness, resolve the
// frame situation, resolve and validate metadata, transmit. It never
// returns an error for locally detected problems; those abort silently
// with a diagnostic in the Result. A transport failure is returned as an
// error alongside the aborted Result so the caller can observe it.
func (b *Beacon) Signal(ctx context.Context) (Result, error) {
	id := b.newID()

	// Defensive re-check of construction-time preconditions.
	if b.disabled != "" {
		b.logger.Warn("pagebeacon: signal while disabled",
			"signal_id", id, "diagnostic", b.disabled)
		return Result{
			SignalID:   id,
			Outcome:    OutcomeDisabled,
			Reason:     ReasonConfig,
			Diagnostic: b.disabled,
		}, nil
	}

	m, err := signalstate.New(b.logger.Handler())
	if err != nil {
		return Result{SignalID: id}, fmt.Errorf("pagebeacon: state machine: %w", err)
	}
	step := func(state string) {
		if terr := m.Transition(state); terr != nil {
			b.logger.Error("pagebeacon: state transition failed",
				"signal_id", id, "to", state, "error", terr)
		}
	}
	abort := func(reason AbortReason, diag string) Result {
		step(signalstate.StateAborted)
		b.logger.Warn("pagebeacon: signal aborted",
			"signal_id", id, "reason", string(reason), "diagnostic", diag)
		return Result{
			SignalID:   id,
			Outcome:    OutcomeAborted,
			Reason:     reason,
			Diagnostic: diag,
		}
	}

	step(signalstate.StateWaitingReady)
	if err := b.page.WaitReady(ctx); err != nil {
		return abort(ReasonNotReady, fmt.Sprintf("readiness wait: %v", err)), nil
	}

	step(signalstate.StateResolvingFrame)
	doc := b.page.Document()
	if b.page.Embedded() {
		top, err := b.topDocument(ctx)
		if err != nil {
			return abort(ReasonFrameAccess,
				fmt.Sprintf("top-level document inaccessible: %v", err)), nil
		}
		doc = top
	}

	step(signalstate.StateResolvingMetadata)
	md := metadata.Resolve(doc, b.cfg.Overrides)

	step(signalstate.StateValidating)
	if missing := md.Missing(); len(missing) > 0 {
		return abort(ReasonIncompleteMetadata, incompleteDiagnostic(missing)), nil
	}

	step(signalstate.StateTransmitting)
	err = b.client.Send(ctx, relay.Payload{
		URL:         md.URL,
		Name:        md.Name,
		Description: md.Description,
		Active:      true,
		Image:       md.Image,
	})
	if err != nil {
		// Transport failure is the one error that propagates.
		return abort(ReasonTransport, err.Error()), err
	}

	step(signalstate.StateDone)
	b.logger.Info("pagebeacon: signal sent", "signal_id", id, "url", md.URL)
	return Result{SignalID: id, Outcome: OutcomeSent, Metadata: &md}, nil
}

// topDocument resolves (or reuses) the top-level ancestor document. The
// retained handle is shared across invocations; the mutex covers Go's
// memory model for concurrent Signal calls, which are otherwise
// independent.
func (b *Beacon) topDocument(ctx context.Context) (metadata.Document, error) {
	b.mu.Lock()
	cached := b.topDoc
	b.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	top, err := b.page.TopDocument(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.topDoc = top
	b.mu.Unlock()
	return top, nil
}

func incompleteDiagnostic(missing []string) string {
	hints := make([]string, len(missing))
	for i, f := range missing {
		hints[i] = f + " (" + metadata.SourceHint(f) + ")"
	}
	return "page metadata incomplete, missing " + strings.Join(hints, "; ")
}
