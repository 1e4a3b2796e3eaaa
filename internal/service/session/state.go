// Package session implements the per-session transcript pipeline: the
// single-flight transcription and index cache, the conversation state machine
// and the registry of live sessions.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// Phase is the readiness state of a conversation.
type Phase int

const (
	// PhaseUninitialized - no index yet; queries are rejected.
	PhaseUninitialized Phase = iota
	// PhaseIndexReady - index built, waiting for a question.
	PhaseIndexReady
	// PhaseAnswering - one question in flight; further questions are rejected.
	PhaseAnswering
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "UNINITIALIZED"
	case PhaseIndexReady:
		return "INDEX_READY"
	case PhaseAnswering:
		return "ANSWERING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", p)
	}
}

// Errors for invalid phase transitions.
var (
	ErrNotReady     = errors.New("session index is not built")
	ErrBusy         = errors.New("session is already answering a question")
	ErrSessionReset = errors.New("session was reset while the operation was running")
)

// Machine guards the phase transitions of one conversation.
// Thread-safe for concurrent access.
//
// Phase transitions:
//
//	UNINITIALIZED ──IndexReady()──→ INDEX_READY ──BeginAnswer()──→ ANSWERING
//	      ↑                             ↑                             │
//	      │                             └────────EndAnswer()──────────┘
//	      └──────────── Reset() from any phase
//
// Rules:
//   - UNINITIALIZED: BeginAnswer fails with ErrNotReady
//   - INDEX_READY: IndexReady is a no-op, BeginAnswer moves to ANSWERING
//   - ANSWERING: BeginAnswer fails with ErrBusy, IndexReady is a no-op
type Machine struct {
	mu    sync.RWMutex
	phase Phase
}

// NewMachine creates a machine in UNINITIALIZED.
func NewMachine() *Machine {
	return &Machine{phase: PhaseUninitialized}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// IndexReady records a successful index build.
func (m *Machine) IndexReady() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseUninitialized {
		m.phase = PhaseIndexReady
	}
}

// BeginAnswer claims the session for one question.
func (m *Machine) BeginAnswer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.phase {
	case PhaseUninitialized:
		return ErrNotReady
	case PhaseAnswering:
		return ErrBusy
	}
	m.phase = PhaseAnswering
	return nil
}

// EndAnswer releases the session after a question finished or failed.
// It is a no-op unless the machine is ANSWERING, so a Reset during the
// answer is not undone.
func (m *Machine) EndAnswer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseAnswering {
		m.phase = PhaseIndexReady
	}
}

// Reset returns to UNINITIALIZED.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = PhaseUninitialized
}
