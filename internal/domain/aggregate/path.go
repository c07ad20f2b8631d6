package aggregate

import (
	"fmt"

	"ikedadada/go-mixway/internal/domain/entity"
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// Path is an aggregate that binds an ordered relay sequence to the
// selection seed it was drawn under. The lottery produces one; the circuit
// builder consumes it hop by hop.
type Path struct {
	seed vo.SelectionSeed
	hops []entity.RelayInfo
}

// NewPath validates and fixes a drawn path. Relays must be distinct, and
// when subnet diversity is requested no two hops may share a /16.
func NewPath(seed vo.SelectionSeed, hops []entity.RelayInfo, requireDistinctSubnet bool) (*Path, error) {
	if len(hops) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	seen := make(map[vo.RelayID]struct{}, len(hops))
	subnets := make(map[string]struct{}, len(hops))
	for _, h := range hops {
		if _, dup := seen[h.ID]; dup {
			return nil, fmt.Errorf("relay %s appears twice in path", h.ID)
		}
		seen[h.ID] = struct{}{}
		if requireDistinctSubnet {
			key := h.Endpoint.SubnetKey()
			if _, dup := subnets[key]; dup {
				return nil, fmt.Errorf("subnet %s appears twice in path", key)
			}
			subnets[key] = struct{}{}
		}
	}
	return &Path{seed: seed, hops: append([]entity.RelayInfo(nil), hops...)}, nil
}

// Seed returns the selection seed the path was drawn under.
func (p *Path) Seed() vo.SelectionSeed { return p.seed }

// Len returns the number of hops.
func (p *Path) Len() int { return len(p.hops) }

// Hop returns the relay at 0-based position i.
func (p *Path) Hop(i int) entity.RelayInfo { return p.hops[i] }

// Hops returns a copy of the relay sequence.
func (p *Path) Hops() []entity.RelayInfo {
	return append([]entity.RelayInfo(nil), p.hops...)
}

// IDs returns the relay ids in hop order.
func (p *Path) IDs() []vo.RelayID {
	out := make([]vo.RelayID, len(p.hops))
	for i, h := range p.hops {
		out[i] = h.ID
	}
	return out
}

// Exit returns the terminal relay.
func (p *Path) Exit() entity.RelayInfo {
	return p.hops[len(p.hops)-1]
}
