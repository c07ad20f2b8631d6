package entity

import (
	"fmt"
	"net"
	"sync"
	"time"

	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// MaxLinkTableSize bounds the arena; slot indexes are 16-bit.
const MaxLinkTableSize = 1 << 16

// LinkTable is a bounded arena of live circuit links. A LinkID packs the
// slot index with the slot's generation counter; freeing advances the
// generation so a stale id never resolves to a reused slot. Generations
// start at one, which keeps the wire-invalid zero id unreachable.
type LinkTable struct {
	mu    sync.Mutex
	slots []linkSlot
	free  []uint16
	live  int
}

type linkSlot struct {
	gen  uint16
	st   *ConnState
	live bool
}

// NewLinkTable creates an arena for up to capacity live links.
func NewLinkTable(capacity int) (*LinkTable, error) {
	if capacity < 1 || capacity > MaxLinkTableSize {
		return nil, fmt.Errorf("link table capacity %d out of range [1,%d]", capacity, MaxLinkTableSize)
	}
	return &LinkTable{slots: make([]linkSlot, 0, capacity)}, nil
}

// Alloc assigns an id to the state. Returns ErrCapacity when every slot is
// live.
func (t *LinkTable) Alloc(st *ConnState) (vo.LinkID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx uint16
	switch {
	case len(t.free) > 0:
		idx = t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
	case len(t.slots) < cap(t.slots):
		t.slots = t.slots[:len(t.slots)+1]
		idx = uint16(len(t.slots) - 1)
		t.slots[idx].gen = 1
	default:
		return 0, vo.ErrCapacity
	}

	s := &t.slots[idx]
	s.st = st
	s.live = true
	t.live++
	return vo.LinkIDFromParts(idx, s.gen), nil
}

// Get resolves a live id, rejecting stale generations.
func (t *LinkTable) Get(id vo.LinkID) (*ConnState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.slot(id)
	if s == nil {
		return nil, false
	}
	return s.st, true
}

// Free releases the slot and returns its state for the caller to close.
// The generation advances so the id is dead from here on.
func (t *LinkTable) Free(id vo.LinkID) (*ConnState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.slot(id)
	if s == nil {
		return nil, false
	}
	st := s.st
	s.st = nil
	s.live = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	t.free = append(t.free, id.Index())
	t.live--
	return st, true
}

// Len reports the number of live links.
func (t *LinkTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// FreeConn frees every link whose upstream side is the given conn and
// returns the freed states. Used when an upstream transport dies and all
// circuits riding it go with it.
func (t *LinkTable) FreeConn(up net.Conn) []*ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()

	var victims []*ConnState
	for i := range t.slots {
		s := &t.slots[i]
		if !s.live || s.st.Up() != up {
			continue
		}
		victims = append(victims, s.st)
		s.st = nil
		s.live = false
		s.gen++
		if s.gen == 0 {
			s.gen = 1
		}
		t.free = append(t.free, uint16(i))
		t.live--
	}
	return victims
}

// SweepIdle frees every link idle longer than ttl and returns the freed
// states for the caller to close outside the lock.
func (t *LinkTable) SweepIdle(ttl time.Duration) []*ConnState {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	var victims []*ConnState
	for i := range t.slots {
		s := &t.slots[i]
		if !s.live || now.Sub(s.st.LastUsed()) <= ttl {
			continue
		}
		victims = append(victims, s.st)
		s.st = nil
		s.live = false
		s.gen++
		if s.gen == 0 {
			s.gen = 1
		}
		t.free = append(t.free, uint16(i))
		t.live--
	}
	return victims
}

// slot resolves id to its live slot. Callers hold t.mu.
func (t *LinkTable) slot(id vo.LinkID) *linkSlot {
	idx := int(id.Index())
	if idx >= len(t.slots) {
		return nil
	}
	s := &t.slots[idx]
	if !s.live || s.gen != id.Gen() {
		return nil
	}
	return s
}
