// Package serverstate tracks the tool server lifecycle phase reported on
// /status. The host health gate dials only while the phase is "ok", so
// flipping it to "draining" stops new editor connections without touching
// the one already open.
package serverstate

import "sync/atomic"

// State holds the server phase and draining flag. Both are updated
// together so callers always observe a consistent snapshot.
type State struct {
	Status   string
	Draining bool
}

// Store defines how the state is kept. The default is in memory; tests
// swap in their own so runs stay independent.
type Store interface {
	Load() State
	Store(State)
}

var active Store = NewMemoryStore()

// UseStore replaces the active Store. It is safe for concurrent use.
func UseStore(s Store) {
	if s != nil {
		active = s
	}
}

type memoryStore struct {
	v atomic.Value
}

// NewMemoryStore returns a memory-backed Store initialized to "starting".
func NewMemoryStore() *memoryStore {
	ms := &memoryStore{}
	ms.v.Store(State{Status: "starting"})
	return ms
}

func (m *memoryStore) Load() State {
	if st, ok := m.v.Load().(State); ok {
		return st
	}
	return State{Status: "unknown"}
}

func (m *memoryStore) Store(s State) {
	m.v.Store(s)
}

// SetState updates the phase string.
func SetState(status string) {
	st := active.Load()
	st.Status = status
	active.Store(st)
}

// GetState returns the current phase.
func GetState() string {
	return active.Load().Status
}

// StartDrain marks the server as draining. Drain is one way; the process
// exits when it completes.
func StartDrain() {
	st := active.Load()
	st.Draining = true
	st.Status = "draining"
	active.Store(st)
}

// IsDraining reports whether a drain is in progress.
func IsDraining() bool {
	return active.Load().Draining
}
