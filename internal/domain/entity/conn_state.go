package entity

import (
	"net"
	"sync"
	"time"

	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// ConnState is the per-circuit state a relay keeps, indexed by the
// upstream link id it assigned from its arena. The serve goroutine for the
// upstream link and the pump goroutine for the downstream link share it,
// so the counters are guarded.
type ConnState struct {
	mu    sync.Mutex
	upWmu sync.Mutex

	keys     vo.HopKeys
	upLink   vo.LinkID
	downLink vo.LinkID
	up       net.Conn
	down     net.Conn

	fwdRecv uint64 // next seq expected from upstream
	fwdSend uint64 // next seq stamped downstream
	bwdSend uint64 // next seq stamped upstream

	pending []byte // exit-side reassembly buffer

	last time.Time
}

// NewConnState records a freshly created circuit hop. The upstream link
// id is set once the arena assigned it.
func NewConnState(keys vo.HopKeys, up net.Conn) *ConnState {
	return &ConnState{keys: keys, up: up, last: time.Now()}
}

// Keys returns a copy of the hop key set.
func (s *ConnState) Keys() vo.HopKeys {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys
}

// SetUpLink records the arena-assigned id before the state is shared.
func (s *ConnState) SetUpLink(link vo.LinkID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upLink = link
}

func (s *ConnState) UpLink() vo.LinkID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upLink
}

func (s *ConnState) Up() net.Conn { return s.up }

func (s *ConnState) DownLink() vo.LinkID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downLink
}

func (s *ConnState) Down() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down
}

// SetDownstream attaches the link this hop extended to, with the id the
// next relay assigned.
func (s *ConnState) SetDownstream(conn net.Conn, link vo.LinkID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = conn
	s.downLink = link
}

// HasDownstream reports whether this hop forwards or terminates.
func (s *ConnState) HasDownstream() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down != nil
}

// ExpectFwd is the next sequence number the upstream side must present.
func (s *ConnState) ExpectFwd() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fwdRecv
}

// ConsumeFwd advances the expected upstream sequence after a cell was
// accepted.
func (s *ConnState) ConsumeFwd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fwdRecv++
}

// NextFwdSend returns the sequence number to stamp on a forwarded cell and
// advances the counter.
func (s *ConnState) NextFwdSend() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.fwdSend
	s.fwdSend++
	return v
}

// NextBwdSend returns the sequence number to stamp on an upstream-bound
// cell and advances the counter.
func (s *ConnState) NextBwdSend() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.bwdSend
	s.bwdSend++
	return v
}

// LockUp serializes upstream writes between the serve and pump
// goroutines.
func (s *ConnState) LockUp() { s.upWmu.Lock() }

func (s *ConnState) UnlockUp() { s.upWmu.Unlock() }

// AppendPending adds a fragment to the exit-side reassembly buffer and
// returns the buffered size.
func (s *ConnState) AppendPending(b []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, b...)
	return len(s.pending)
}

// TakePending returns the reassembled payload and resets the buffer.
func (s *ConnState) TakePending() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	s.pending = nil
	return p
}

// Touch updates the last-used time to now.
func (s *ConnState) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = time.Now()
}

// LastUsed reports the last time the state was accessed.
func (s *ConnState) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// WipeKeys zeroes the hop key set.
func (s *ConnState) WipeKeys() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys.Wipe()
}

// CloseDown wipes the keys and closes only the downstream side. The
// upstream conn stays open: the previous hop owns it and closes it when
// its own layer is torn down.
func (s *ConnState) CloseDown() {
	s.mu.Lock()
	down := s.down
	s.down = nil
	s.keys.Wipe()
	s.pending = nil
	s.mu.Unlock()
	if down != nil {
		down.Close()
	}
}

// Close wipes the keys and closes both sides of the circuit.
func (s *ConnState) Close() {
	s.mu.Lock()
	up, down := s.up, s.down
	s.keys.Wipe()
	s.pending = nil
	s.mu.Unlock()
	if up != nil {
		up.Close()
	}
	if down != nil {
		down.Close()
	}
}
