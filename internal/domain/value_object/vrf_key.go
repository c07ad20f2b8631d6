package value_object

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"math"
)

const (
	// VRFProofSize is Gamma(32) || c(16) || s(32).
	VRFProofSize = 80
	// VRFOutputSize is the proof-to-hash output length.
	VRFOutputSize = 64

	vrfPrivPEMType = "MIXWAY VRF PRIVATE KEY"
	vrfPubPEMType  = "MIXWAY VRF PUBLIC KEY"
)

// VRFPrivateKey is a 32-byte ECVRF secret seed, expanded per use the same
// way an Ed25519 seed is.
type VRFPrivateKey [32]byte

// VRFPublicKey is a compressed edwards25519 point.
type VRFPublicKey [32]byte

// VRFProof is an ECVRF proof string.
type VRFProof [VRFProofSize]byte

// VRFOutput is the hash output of a verified proof.
type VRFOutput [VRFOutputSize]byte

func NewVRFPrivateKey() (VRFPrivateKey, error) {
	var k VRFPrivateKey
	_, err := rand.Read(k[:])
	return k, err
}

func VRFPrivateKeyFromPEM(pemBytes []byte) (VRFPrivateKey, error) {
	var k VRFPrivateKey
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return k, errors.New("no PEM data")
	}
	if block.Type != vrfPrivPEMType {
		return k, fmt.Errorf("unexpected PEM type %q", block.Type)
	}
	if len(block.Bytes) != 32 {
		return k, fmt.Errorf("vrf private key must be 32B, got %d", len(block.Bytes))
	}
	copy(k[:], block.Bytes)
	return k, nil
}

func (k VRFPrivateKey) ToPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: vrfPrivPEMType, Bytes: k[:]})
}

// Wipe zeroes the seed in place.
func (k *VRFPrivateKey) Wipe() {
	for i := range k {
		k[i] = 0
	}
}

func VRFPublicKeyFrom(b []byte) (VRFPublicKey, error) {
	var k VRFPublicKey
	if len(b) != 32 {
		return k, fmt.Errorf("vrf public key must be 32B, got %d", len(b))
	}
	copy(k[:], b)
	return k, nil
}

func VRFPublicKeyFromPEM(pemBytes []byte) (VRFPublicKey, error) {
	var k VRFPublicKey
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return k, errors.New("no PEM data")
	}
	if block.Type != vrfPubPEMType {
		return k, fmt.Errorf("unexpected PEM type %q", block.Type)
	}
	return VRFPublicKeyFrom(block.Bytes)
}

func (k VRFPublicKey) ToPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: vrfPubPEMType, Bytes: k[:]})
}

func (k VRFPublicKey) Bytes() []byte { return append([]byte(nil), k[:]...) }

func VRFProofFrom(b []byte) (VRFProof, error) {
	var p VRFProof
	if len(b) != VRFProofSize {
		return p, fmt.Errorf("vrf proof must be %dB, got %d", VRFProofSize, len(b))
	}
	copy(p[:], b)
	return p, nil
}

func VRFOutputFrom(b []byte) (VRFOutput, error) {
	var o VRFOutput
	if len(b) != VRFOutputSize {
		return o, fmt.Errorf("vrf output must be %dB, got %d", VRFOutputSize, len(b))
	}
	copy(o[:], b)
	return o, nil
}

// Uniform maps the output onto (0, 1] from its first eight bytes. The
// mapping is the per-epoch lottery randomness for this relay.
func (o VRFOutput) Uniform() float64 {
	x := binary.BigEndian.Uint64(o[:8])
	return math.Ldexp(float64(x)+1, -64)
}
