package service

import (
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// VRFService evaluates and verifies the lottery VRF. Every relay proves
// its own per-epoch randomness; anyone holding the relay's public key can
// recheck the proof and recover the same output.
type VRFService interface {
	// Prove evaluates the VRF over alpha with the private seed.
	Prove(priv vo.VRFPrivateKey, alpha []byte) (vo.VRFOutput, vo.VRFProof, error)

	// Verify checks proof against pub and alpha and returns the output
	// the proof commits to.
	Verify(pub vo.VRFPublicKey, alpha []byte, proof vo.VRFProof) (vo.VRFOutput, error)

	// PublicKey derives the verification key for a private seed.
	PublicKey(priv vo.VRFPrivateKey) (vo.VRFPublicKey, error)
}
