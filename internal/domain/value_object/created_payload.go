package value_object

import "fmt"

// CreatedPayloadSize is Suite(1) + RelayEph(32) + Sig(64).
const CreatedPayloadSize = 97

// CreatedPayload answers a Create: the relay's ephemeral X25519 public key
// and an identity signature binding both ephemerals and the client nonce.
// The client must verify Sig against the descriptor identity key before
// trusting the negotiated keys.
type CreatedPayload struct {
	Suite    Suite
	RelayEph [32]byte
	Sig      [64]byte
}

// EncodeCreatedPayload serializes p into its fixed layout.
func EncodeCreatedPayload(p *CreatedPayload) []byte {
	out := make([]byte, CreatedPayloadSize)
	out[0] = byte(p.Suite)
	copy(out[1:33], p.RelayEph[:])
	copy(out[33:97], p.Sig[:])
	return out
}

// DecodeCreatedPayload parses and validates the fixed layout.
func DecodeCreatedPayload(b []byte) (*CreatedPayload, error) {
	if len(b) != CreatedPayloadSize {
		return nil, fmt.Errorf("created payload must be %dB, got %d", CreatedPayloadSize, len(b))
	}
	suite, err := SuiteFrom(b[0])
	if err != nil {
		return nil, err
	}
	p := &CreatedPayload{Suite: suite}
	copy(p.RelayEph[:], b[1:33])
	copy(p.Sig[:], b[33:97])
	return p, nil
}
