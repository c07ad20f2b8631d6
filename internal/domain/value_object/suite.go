package value_object

import "fmt"

// Suite selects the cipher suite for a circuit handshake. The set is closed:
// adding a suite means extending the switches here and in the crypto services.
type Suite byte

const (
	// SuiteX25519Ed25519ChaCha20 is X25519 key agreement, Ed25519 identity
	// signatures, HKDF-SHA256 key schedule, ChaCha20-Poly1305 layer
	// encryption and keyed BLAKE2b cell tags.
	SuiteX25519Ed25519ChaCha20 Suite = 0x01
)

// SuiteFrom parses a wire byte into a Suite.
func SuiteFrom(b byte) (Suite, error) {
	s := Suite(b)
	if !s.IsValid() {
		return 0, fmt.Errorf("unknown suite 0x%02x", b)
	}
	return s, nil
}

// IsValid reports whether the suite is a known member of the closed set.
func (s Suite) IsValid() bool { return s == SuiteX25519Ed25519ChaCha20 }

func (s Suite) String() string {
	switch s {
	case SuiteX25519Ed25519ChaCha20:
		return "x25519-ed25519-chacha20poly1305"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(s))
	}
}
