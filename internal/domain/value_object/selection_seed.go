package value_object

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// SelectionSeedSize is the entropy length of an epoch seed.
const SelectionSeedSize = 32

// SelectionSeed is the shared per-epoch entropy every participant feeds
// into the relay selection lottery. Immutable once published.
type SelectionSeed struct {
	epoch   uint64
	entropy [SelectionSeedSize]byte
}

func NewSelectionSeed(epoch uint64, entropy [SelectionSeedSize]byte) SelectionSeed {
	return SelectionSeed{epoch: epoch, entropy: entropy}
}

func SelectionSeedFrom(epoch uint64, b []byte) (SelectionSeed, error) {
	var s SelectionSeed
	if len(b) != SelectionSeedSize {
		return s, fmt.Errorf("selection seed must be %dB, got %d", SelectionSeedSize, len(b))
	}
	s.epoch = epoch
	copy(s.entropy[:], b)
	return s, nil
}

func (s SelectionSeed) Epoch() uint64                    { return s.epoch }
func (s SelectionSeed) Entropy() [SelectionSeedSize]byte { return s.entropy }

// Bytes returns the canonical encoding, epoch big-endian then entropy.
// This is the prefix of every VRF input for the epoch.
func (s SelectionSeed) Bytes() []byte {
	out := make([]byte, 8+SelectionSeedSize)
	binary.BigEndian.PutUint64(out[:8], s.epoch)
	copy(out[8:], s.entropy[:])
	return out
}

func (s SelectionSeed) Equal(o SelectionSeed) bool {
	return s.epoch == o.epoch && s.entropy == o.entropy
}

// Next derives the seed for the following epoch by hashing this one's
// canonical encoding. Every holder of the current seed can verify the
// published successor.
func (s SelectionSeed) Next() SelectionSeed {
	return SelectionSeed{epoch: s.epoch + 1, entropy: blake2b.Sum256(s.Bytes())}
}
