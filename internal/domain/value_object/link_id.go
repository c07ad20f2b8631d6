package value_object

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// LinkID is the link-local circuit identifier carried in every cell header.
// It is scoped to one transport link and assigned by the side that accepted
// the link, from its arena of live circuits; the initiator proposes a
// provisional id in the Create cell and adopts the assigned one from the
// Created header. Zero is reserved and never valid on the wire.
type LinkID uint32

// NewLinkID returns a random non-zero provisional link id.
func NewLinkID() (LinkID, error) {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		if id := LinkID(binary.BigEndian.Uint32(b[:])); id != 0 {
			return id, nil
		}
	}
}

// LinkIDFrom validates a wire value.
func LinkIDFrom(v uint32) (LinkID, error) {
	if v == 0 {
		return 0, fmt.Errorf("link id must not be zero")
	}
	return LinkID(v), nil
}

// LinkIDFromParts packs an arena slot index and its generation counter.
func LinkIDFromParts(index, gen uint16) LinkID {
	return LinkID(uint32(gen)<<16 | uint32(index))
}

func (l LinkID) Index() uint16  { return uint16(l) }
func (l LinkID) Gen() uint16    { return uint16(l >> 16) }
func (l LinkID) Uint32() uint32 { return uint32(l) }
func (l LinkID) String() string { return fmt.Sprintf("%08x", uint32(l)) }
