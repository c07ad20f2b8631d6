package entity

import (
	"fmt"
	"net"
	"sync"

	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// Hop is the client-held cryptographic state for one established relay on
// a circuit: the derived key set and the sequence mirrors for both
// directions. FwdSeq is the next number this hop expects from us; BwdSeq
// the next number we expect it to stamp toward us.
type Hop struct {
	Relay  vo.RelayID
	Keys   vo.HopKeys
	FwdSeq uint64
	BwdSeq uint64
}

// Circuit aggregates the client-side state of one onion path: the planned
// relays, the hops established so far, the link to the first hop and the
// lifecycle state. The lifecycle manager owns circuits exclusively; no hop
// state is ever shared between circuits.
type Circuit struct {
	mu sync.Mutex

	id        vo.CircuitID
	path      []RelayInfo
	state     vo.CircuitState
	hops      []*Hop
	link      vo.LinkID
	conn      net.Conn
	createdAt vo.TimeStamp
	rotateAt  vo.TimeStamp
}

// NewCircuit plans a circuit over the given path.
func NewCircuit(id vo.CircuitID, path []RelayInfo) (*Circuit, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	seen := make(map[vo.RelayID]struct{}, len(path))
	for _, r := range path {
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("relay %s appears twice in path", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return &Circuit{
		id:        id,
		path:      append([]RelayInfo(nil), path...),
		state:     vo.StatePending,
		createdAt: vo.Now(),
	}, nil
}

func (c *Circuit) ID() vo.CircuitID        { return c.id }
func (c *Circuit) CreatedAt() vo.TimeStamp { return c.createdAt }

func (c *Circuit) PathLen() int {
	return len(c.path)
}

// PathAt returns the planned relay at 0-based position i.
func (c *Circuit) PathAt(i int) (RelayInfo, error) {
	if i < 0 || i >= len(c.path) {
		return RelayInfo{}, fmt.Errorf("hop index %d out of range", i)
	}
	return c.path[i], nil
}

// HopIDs returns the planned relay ids in path order.
func (c *Circuit) HopIDs() []vo.RelayID {
	out := make([]vo.RelayID, len(c.path))
	for i, r := range c.path {
		out[i] = r.ID
	}
	return out
}

func (c *Circuit) State() vo.CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TransitionTo moves the lifecycle state, rejecting illegal steps.
func (c *Circuit) TransitionTo(next vo.CircuitState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.CanTransition(next) {
		return fmt.Errorf("illegal circuit transition %s -> %s", c.state, next)
	}
	c.state = next
	return nil
}

// AttachLink records the transport link to the first hop once the Created
// answer assigned its id.
func (c *Circuit) AttachLink(conn net.Conn, link vo.LinkID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.link = link
}

func (c *Circuit) Conn() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Circuit) Link() vo.LinkID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

// AddHop appends a freshly established hop with zeroed sequence mirrors.
func (c *Circuit) AddHop(relay vo.RelayID, keys vo.HopKeys) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hops = append(c.hops, &Hop{Relay: relay, Keys: keys})
}

// EstablishedHops returns how many hops completed their handshake.
func (c *Circuit) EstablishedHops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.hops)
}

// HopKeysAt returns a copy of the key set for the 0-based hop index.
func (c *Circuit) HopKeysAt(i int) (vo.HopKeys, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.hops) {
		return vo.HopKeys{}, fmt.Errorf("hop index %d out of range", i)
	}
	return c.hops[i].Keys, nil
}

// FwdSeqs returns the current forward sequence mirrors for hops [0, n).
func (c *Circuit) FwdSeqs(n int) []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, 0, n)
	for i := 0; i < n && i < len(c.hops); i++ {
		out = append(out, c.hops[i].FwdSeq)
	}
	return out
}

// CommitFwd advances the forward mirrors for hops [0, n) after a cell
// addressed to hop n was sent.
func (c *Circuit) CommitFwd(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < n && i < len(c.hops); i++ {
		c.hops[i].FwdSeq++
	}
}

// BwdSeqs returns the current backward sequence mirrors for hops [0, n).
func (c *Circuit) BwdSeqs(n int) []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, 0, n)
	for i := 0; i < n && i < len(c.hops); i++ {
		out = append(out, c.hops[i].BwdSeq)
	}
	return out
}

// CommitBwd advances the backward mirrors for hops [0, n) after accepting
// a cell that originated at hop n.
func (c *Circuit) CommitBwd(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < n && i < len(c.hops); i++ {
		c.hops[i].BwdSeq++
	}
}

// ExpectedBwdSeq is the next sequence number hop 1 must stamp on a cell
// toward us. The session pump checks it before any crypto.
func (c *Circuit) ExpectedBwdSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.hops) == 0 {
		return 0
	}
	return c.hops[0].BwdSeq
}

func (c *Circuit) SetRotateAt(ts vo.TimeStamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rotateAt = ts
}

func (c *Circuit) RotateAt() vo.TimeStamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rotateAt
}

// WipeKeys zeroes every hop key set. Called on teardown before the hops
// are forgotten.
func (c *Circuit) WipeKeys() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.hops {
		h.Keys.Wipe()
	}
}

func (c *Circuit) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("Circuit(%s) state=%s hops=%d/%d", c.id, c.state, len(c.hops), len(c.path))
}
