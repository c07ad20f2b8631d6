package service

import (
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// ECVRF-EDWARDS25519-SHA512-TAI (RFC 9381): suite 0x03, try-and-increment
// hash-to-curve, 16-byte challenges, little-endian scalar encoding.
const (
	vrfSuite byte = 0x03

	vrfDomainEncode    byte = 0x01
	vrfDomainChallenge byte = 0x02
	vrfDomainOutput    byte = 0x03

	vrfChallengeSize = 16
)

var errVRFProofInvalid = errors.New("vrf: invalid proof")

// vrfServiceImpl implements VRFService over the edwards25519 group.
type vrfServiceImpl struct{}

// NewVRFService creates a VRFService.
func NewVRFService() VRFService { return vrfServiceImpl{} }

// Prove evaluates the VRF over alpha with the private seed.
func (vrfServiceImpl) Prove(priv vo.VRFPrivateKey, alpha []byte) (vo.VRFOutput, vo.VRFProof, error) {
	var out vo.VRFOutput
	var pi vo.VRFProof

	x, expanded, err := vrfExpandSeed(priv)
	if err != nil {
		return out, pi, err
	}
	defer wipeBytes(expanded)

	y := new(edwards25519.Point).ScalarBaseMult(x).Bytes()

	h, err := vrfEncodeToCurve(y, alpha)
	if err != nil {
		return out, pi, err
	}
	hBytes := h.Bytes()

	gamma := new(edwards25519.Point).ScalarMult(x, h)

	// Deterministic nonce per RFC 8032: the upper half of the expanded
	// seed hashed with the input point.
	nh := sha512.New()
	nh.Write(expanded[32:])
	nh.Write(hBytes)
	k, err := new(edwards25519.Scalar).SetUniformBytes(nh.Sum(nil))
	if err != nil {
		return out, pi, err
	}

	u := new(edwards25519.Point).ScalarBaseMult(k)
	v := new(edwards25519.Point).ScalarMult(k, h)
	c, cString := vrfChallenge(y, hBytes, gamma.Bytes(), u.Bytes(), v.Bytes())

	s := new(edwards25519.Scalar).MultiplyAdd(c, x, k)

	copy(pi[0:32], gamma.Bytes())
	copy(pi[32:48], cString)
	copy(pi[48:80], s.Bytes())
	return vrfOutput(gamma), pi, nil
}

// Verify checks proof against pub and alpha and returns the output the
// proof commits to.
func (vrfServiceImpl) Verify(pub vo.VRFPublicKey, alpha []byte, proof vo.VRFProof) (vo.VRFOutput, error) {
	var out vo.VRFOutput

	y, err := new(edwards25519.Point).SetBytes(pub[:])
	if err != nil {
		return out, fmt.Errorf("vrf: bad public key: %w", err)
	}
	yBytes := y.Bytes()

	gamma, err := new(edwards25519.Point).SetBytes(proof[0:32])
	if err != nil {
		return out, errVRFProofInvalid
	}
	var cBuf [32]byte
	copy(cBuf[:vrfChallengeSize], proof[32:48])
	c, err := new(edwards25519.Scalar).SetCanonicalBytes(cBuf[:])
	if err != nil {
		return out, errVRFProofInvalid
	}
	s, err := new(edwards25519.Scalar).SetCanonicalBytes(proof[48:80])
	if err != nil {
		return out, errVRFProofInvalid
	}

	h, err := vrfEncodeToCurve(yBytes, alpha)
	if err != nil {
		return out, err
	}

	// U = s*B - c*Y, V = s*H - c*Gamma.
	cNeg := new(edwards25519.Scalar).Negate(c)
	u := new(edwards25519.Point).VarTimeDoubleScalarBaseMult(cNeg, y, s)
	sH := new(edwards25519.Point).ScalarMult(s, h)
	cG := new(edwards25519.Point).ScalarMult(cNeg, gamma)
	v := new(edwards25519.Point).Add(sH, cG)

	_, expect := vrfChallenge(yBytes, h.Bytes(), gamma.Bytes(), u.Bytes(), v.Bytes())
	if subtle.ConstantTimeCompare(expect, proof[32:48]) != 1 {
		return out, errVRFProofInvalid
	}
	return vrfOutput(gamma), nil
}

// PublicKey derives the verification key for a private seed.
func (vrfServiceImpl) PublicKey(priv vo.VRFPrivateKey) (vo.VRFPublicKey, error) {
	var pub vo.VRFPublicKey
	x, expanded, err := vrfExpandSeed(priv)
	if err != nil {
		return pub, err
	}
	wipeBytes(expanded)
	copy(pub[:], new(edwards25519.Point).ScalarBaseMult(x).Bytes())
	return pub, nil
}

// vrfExpandSeed derives the secret scalar and the nonce half from the
// seed, matching Ed25519 key expansion.
func vrfExpandSeed(priv vo.VRFPrivateKey) (*edwards25519.Scalar, []byte, error) {
	expanded := sha512.Sum512(priv[:])
	x, err := new(edwards25519.Scalar).SetBytesWithClamping(expanded[:32])
	if err != nil {
		return nil, nil, err
	}
	return x, expanded[:], nil
}

// vrfEncodeToCurve hashes alpha onto the prime-order subgroup by try and
// increment, salted with the public key encoding.
func vrfEncodeToCurve(y, alpha []byte) (*edwards25519.Point, error) {
	identity := edwards25519.NewIdentityPoint()
	for ctr := 0; ctr < 256; ctr++ {
		m := sha512.New()
		m.Write([]byte{vrfSuite, vrfDomainEncode})
		m.Write(y)
		m.Write(alpha)
		m.Write([]byte{byte(ctr), 0x00})
		sum := m.Sum(nil)

		p, err := new(edwards25519.Point).SetBytes(sum[:32])
		if err != nil {
			continue
		}
		// Multiply by the cofactor so the point lands in the prime-order
		// subgroup; reject the identity.
		p.Add(p, p)
		p.Add(p, p)
		p.Add(p, p)
		if p.Equal(identity) == 1 {
			continue
		}
		return p, nil
	}
	return nil, errors.New("vrf: encode to curve exhausted")
}

// vrfChallenge derives the 16-byte Fiat-Shamir challenge over the five
// point encodings, returning it both as a scalar and as proof bytes.
func vrfChallenge(points ...[]byte) (*edwards25519.Scalar, []byte) {
	m := sha512.New()
	m.Write([]byte{vrfSuite, vrfDomainChallenge})
	for _, p := range points {
		m.Write(p)
	}
	m.Write([]byte{0x00})
	sum := m.Sum(nil)

	var buf [32]byte
	copy(buf[:vrfChallengeSize], sum[:vrfChallengeSize])
	// The top half of buf is zero, so the value is always canonical.
	c, _ := new(edwards25519.Scalar).SetCanonicalBytes(buf[:])
	return c, sum[:vrfChallengeSize]
}

// vrfOutput is proof-to-hash over the cofactor-cleared Gamma point.
func vrfOutput(gamma *edwards25519.Point) vo.VRFOutput {
	cleared := new(edwards25519.Point).Set(gamma)
	cleared.Add(cleared, cleared)
	cleared.Add(cleared, cleared)
	cleared.Add(cleared, cleared)

	m := sha512.New()
	m.Write([]byte{vrfSuite, vrfDomainOutput})
	m.Write(cleared.Bytes())
	m.Write([]byte{0x00})

	var out vo.VRFOutput
	copy(out[:], m.Sum(nil))
	return out
}

func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
