package value_object

import "fmt"

// CreatePayloadSize is Suite(1) + ClientEph(32) + ClientNonce(16).
const CreatePayloadSize = 49

// CreatePayload opens a handshake with a relay: the suite selector, the
// client's ephemeral X25519 public key and the salt nonce for the key
// schedule.
type CreatePayload struct {
	Suite       Suite
	ClientEph   [32]byte
	ClientNonce [16]byte
}

// EncodeCreatePayload serializes p into its fixed layout.
func EncodeCreatePayload(p *CreatePayload) []byte {
	out := make([]byte, CreatePayloadSize)
	out[0] = byte(p.Suite)
	copy(out[1:33], p.ClientEph[:])
	copy(out[33:49], p.ClientNonce[:])
	return out
}

// DecodeCreatePayload parses and validates the fixed layout.
func DecodeCreatePayload(b []byte) (*CreatePayload, error) {
	if len(b) != CreatePayloadSize {
		return nil, fmt.Errorf("create payload must be %dB, got %d", CreatePayloadSize, len(b))
	}
	suite, err := SuiteFrom(b[0])
	if err != nil {
		return nil, err
	}
	p := &CreatePayload{Suite: suite}
	copy(p.ClientEph[:], b[1:33])
	copy(p.ClientNonce[:], b[33:49])
	return p, nil
}
