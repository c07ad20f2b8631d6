package usecase

import (
	"sync"

	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// SessionTable tracks the live session per circuit. The lifecycle
// manager writes it; data-plane use cases read from it.
type SessionTable struct {
	mu sync.Mutex
	m  map[vo.CircuitID]*CircuitSession
}

// NewSessionTable returns an empty table.
func NewSessionTable() *SessionTable {
	return &SessionTable{m: make(map[vo.CircuitID]*CircuitSession)}
}

// Put registers a session under its circuit's id, replacing any previous
// entry.
func (t *SessionTable) Put(s *CircuitSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[s.Circuit().ID()] = s
}

// Get looks up the session for a circuit.
func (t *SessionTable) Get(id vo.CircuitID) (*CircuitSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.m[id]
	return s, ok
}

// Remove drops and returns the session for a circuit.
func (t *SessionTable) Remove(id vo.CircuitID) (*CircuitSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.m[id]
	if ok {
		delete(t.m, id)
	}
	return s, ok
}

// All snapshots the current sessions.
func (t *SessionTable) All() []*CircuitSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*CircuitSession, 0, len(t.m))
	for _, s := range t.m {
		out = append(out, s)
	}
	return out
}

// Len reports the number of live sessions.
func (t *SessionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.m)
}
