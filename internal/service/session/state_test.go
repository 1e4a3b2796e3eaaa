package session

import (
	"errors"
	"sync"
	"testing"
)

func TestMachine_InitialPhase(t *testing.T) {
	m := NewMachine()

	if m.Phase() != PhaseUninitialized {
		t.Errorf("expected PhaseUninitialized, got %v", m.Phase())
	}
	if err := m.BeginAnswer(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestMachine_FullCycle(t *testing.T) {
	m := NewMachine()

	m.IndexReady()
	if m.Phase() != PhaseIndexReady {
		t.Fatalf("expected PhaseIndexReady, got %v", m.Phase())
	}

	m.IndexReady()
	if m.Phase() != PhaseIndexReady {
		t.Errorf("expected IndexReady to be a no-op, got %v", m.Phase())
	}

	if err := m.BeginAnswer(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Phase() != PhaseAnswering {
		t.Errorf("expected PhaseAnswering, got %v", m.Phase())
	}

	if err := m.BeginAnswer(); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	m.IndexReady()
	if m.Phase() != PhaseAnswering {
		t.Errorf("expected IndexReady not to interrupt an answer, got %v", m.Phase())
	}

	m.EndAnswer()
	if m.Phase() != PhaseIndexReady {
		t.Errorf("expected PhaseIndexReady after EndAnswer, got %v", m.Phase())
	}
}

func TestMachine_Reset(t *testing.T) {
	phases := []func(m *Machine){
		func(m *Machine) {},
		func(m *Machine) { m.IndexReady() },
		func(m *Machine) { m.IndexReady(); m.BeginAnswer() },
	}

	for i, setup := range phases {
		m := NewMachine()
		setup(m)
		m.Reset()
		if m.Phase() != PhaseUninitialized {
			t.Errorf("case %d: expected PhaseUninitialized after Reset, got %v", i, m.Phase())
		}
	}
}

func TestMachine_EndAnswerAfterReset(t *testing.T) {
	m := NewMachine()
	m.IndexReady()
	m.BeginAnswer()

	m.Reset()
	m.EndAnswer()

	if m.Phase() != PhaseUninitialized {
		t.Errorf("expected EndAnswer not to undo Reset, got %v", m.Phase())
	}
}

func TestMachine_ConcurrentBeginAnswer(t *testing.T) {
	m := NewMachine()
	m.IndexReady()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, busy := 0, 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.BeginAnswer()
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrBusy):
				busy++
			}
		}()
	}
	wg.Wait()

	if wins != 1 || busy != 49 {
		t.Errorf("expected exactly one winner, got wins=%d busy=%d", wins, busy)
	}
}

func TestPhase_String(t *testing.T) {
	tests := []struct {
		phase    Phase
		expected string
	}{
		{PhaseUninitialized, "UNINITIALIZED"},
		{PhaseIndexReady, "INDEX_READY"},
		{PhaseAnswering, "ANSWERING"},
		{Phase(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.phase.String(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}
