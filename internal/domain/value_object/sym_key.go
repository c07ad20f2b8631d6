package value_object

import (
	"crypto/rand"
	"fmt"
)

// SymKey is a 256-bit symmetric key.
type SymKey [32]byte

func NewSymKey() (SymKey, error) {
	var k SymKey
	_, err := rand.Read(k[:])
	return k, err
}

func SymKeyFrom(b []byte) (SymKey, error) {
	var k SymKey
	if len(b) != 32 {
		return k, fmt.Errorf("sym key must be 32B")
	}
	copy(k[:], b)
	return k, nil
}

// Wipe zeroes the key in place.
func (k *SymKey) Wipe() {
	for i := range k {
		k[i] = 0
	}
}
