package value_object

import "fmt"

// HopKeysSize is the key schedule output length: four 32-byte keys.
const HopKeysSize = 128

// HopKeys is the per-hop key set a handshake derives: one AEAD key and one
// integrity (tag) key per direction. The two sides of a hop hold identical
// sets; direction selects which pair applies.
type HopKeys struct {
	FwdAEAD SymKey
	BwdAEAD SymKey
	FwdMAC  SymKey
	BwdMAC  SymKey
}

// HopKeysFrom splits key schedule output in derivation order: forward AEAD,
// backward AEAD, forward MAC, backward MAC.
func HopKeysFrom(b []byte) (HopKeys, error) {
	var k HopKeys
	if len(b) != HopKeysSize {
		return k, fmt.Errorf("hop key material must be %dB, got %d", HopKeysSize, len(b))
	}
	copy(k.FwdAEAD[:], b[0:32])
	copy(k.BwdAEAD[:], b[32:64])
	copy(k.FwdMAC[:], b[64:96])
	copy(k.BwdMAC[:], b[96:128])
	return k, nil
}

// Wipe zeroes all four keys in place.
func (k *HopKeys) Wipe() {
	k.FwdAEAD.Wipe()
	k.BwdAEAD.Wipe()
	k.FwdMAC.Wipe()
	k.BwdMAC.Wipe()
}
