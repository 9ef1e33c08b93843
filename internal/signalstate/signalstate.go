// Package signalstate defines the lifecycle state machine for one signal
// invocation. Every call to Beacon.Signal drives a fresh machine from Idle
// through the resolution pipeline to a terminal Done or Aborted.
package signalstate

import (
	"log/slog"

	fsm "github.com/robbyt/go-fsm/v2"
)

const (
	StateIdle              = "idle"
	StateWaitingReady      = "waiting_ready"
	StateResolvingFrame    = "resolving_frame"
	StateResolvingMetadata = "resolving_metadata"
	StateValidating        = "validating"
	StateTransmitting      = "transmitting"
	StateDone              = "done"
	StateAborted           = "aborted"
)

// Transitions defines the legal transitions for a signal invocation. The
// pipeline is linear; every non-terminal state can abort. Done and Aborted
// are terminal.
var Transitions = map[string][]string{
	StateIdle:              {StateWaitingReady, StateAborted},
	StateWaitingReady:      {StateResolvingFrame, StateAborted},
	StateResolvingFrame:    {StateResolvingMetadata, StateAborted},
	StateResolvingMetadata: {StateValidating, StateAborted},
	StateValidating:        {StateTransmitting, StateAborted},
	StateTransmitting:      {StateDone, StateAborted},
	StateDone:              {},
	StateAborted:           {},
}

// Machine is the subset of the go-fsm API the controller drives. The
// abstraction keeps the controller testable against a recording fake.
type Machine interface {
	Transition(state string) error
	GetState() string
}

// New creates a machine starting at StateIdle, logging transitions through
// the given handler.
func New(handler slog.Handler) (Machine, error) {
	return fsm.NewSimple(StateIdle, Transitions, fsm.WithLogger(slog.New(handler)))
}

// Terminal reports whether state permits no further transitions.
func Terminal(state string) bool {
	return len(Transitions[state]) == 0
}
