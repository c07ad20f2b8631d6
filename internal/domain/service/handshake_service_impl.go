package service

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	vo "ikedadada/go-mixway/internal/domain/value_object"
)

const (
	createdSigLabel = "mixway-created-v1"
	hopKeyLabel     = "mixway-hop-keys-v1"
)

// handshakeServiceImpl implements HandshakeService with X25519 key
// agreement and Ed25519 relay authentication.
type handshakeServiceImpl struct{}

// NewHandshakeService creates a HandshakeService.
func NewHandshakeService() HandshakeService { return handshakeServiceImpl{} }

// Begin starts the client side of one hop handshake.
func (handshakeServiceImpl) Begin(suite vo.Suite) (*ClientHandshake, *vo.CreatePayload, error) {
	if !suite.IsValid() {
		return nil, nil, fmt.Errorf("handshake: unsupported suite 0x%02x", byte(suite))
	}
	hs := &ClientHandshake{suite: suite}
	if _, err := rand.Read(hs.priv[:]); err != nil {
		return nil, nil, err
	}
	pub, err := curve25519.X25519(hs.priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	copy(hs.pub[:], pub)
	if _, err := rand.Read(hs.nonce[:]); err != nil {
		return nil, nil, err
	}

	hello := &vo.CreatePayload{Suite: suite, ClientEph: hs.pub, ClientNonce: hs.nonce}
	return hs, hello, nil
}

// Finish verifies the relay's answer and derives the hop keys.
func (handshakeServiceImpl) Finish(hs *ClientHandshake, answer *vo.CreatedPayload, identity vo.Ed25519PubKey) (vo.HopKeys, error) {
	var keys vo.HopKeys
	defer hs.Wipe()

	if answer.Suite != hs.suite {
		return keys, fmt.Errorf("handshake: suite mismatch: sent 0x%02x, answered 0x%02x", byte(hs.suite), byte(answer.Suite))
	}
	msg := createdSigInput(hs.pub, answer.RelayEph, hs.nonce)
	if !identity.Verify(msg, answer.Sig[:]) {
		return keys, fmt.Errorf("handshake: relay identity signature invalid")
	}

	shared, err := curve25519.X25519(hs.priv[:], answer.RelayEph[:])
	if err != nil {
		return keys, fmt.Errorf("handshake: %w", err)
	}
	defer wipeBytes(shared)
	return deriveHopKeys(hs.suite, shared, hs.nonce[:])
}

// Respond runs the relay side of one Create.
func (handshakeServiceImpl) Respond(hello *vo.CreatePayload, identity *vo.Ed25519PrivKey) (vo.HopKeys, *vo.CreatedPayload, error) {
	var keys vo.HopKeys
	if !hello.Suite.IsValid() {
		return keys, nil, fmt.Errorf("handshake: unsupported suite 0x%02x", byte(hello.Suite))
	}

	var eph [32]byte
	if _, err := rand.Read(eph[:]); err != nil {
		return keys, nil, err
	}
	defer wipeBytes(eph[:])
	pub, err := curve25519.X25519(eph[:], curve25519.Basepoint)
	if err != nil {
		return keys, nil, err
	}

	shared, err := curve25519.X25519(eph[:], hello.ClientEph[:])
	if err != nil {
		return keys, nil, fmt.Errorf("handshake: %w", err)
	}
	defer wipeBytes(shared)
	keys, err = deriveHopKeys(hello.Suite, shared, hello.ClientNonce[:])
	if err != nil {
		return keys, nil, err
	}

	answer := &vo.CreatedPayload{Suite: hello.Suite}
	copy(answer.RelayEph[:], pub)
	sig := identity.Sign(createdSigInput(hello.ClientEph, answer.RelayEph, hello.ClientNonce))
	copy(answer.Sig[:], sig)
	return keys, answer, nil
}

// createdSigInput is the byte string the relay identity signs: both
// ephemerals and the client nonce under a fixed label, so an answer can
// never be replayed into another handshake.
func createdSigInput(clientEph, relayEph [32]byte, nonce [16]byte) []byte {
	msg := make([]byte, 0, len(createdSigLabel)+32+32+16)
	msg = append(msg, createdSigLabel...)
	msg = append(msg, clientEph[:]...)
	msg = append(msg, relayEph[:]...)
	return append(msg, nonce[:]...)
}

// deriveHopKeys expands the shared secret into the four directional keys,
// salted by the client nonce.
func deriveHopKeys(suite vo.Suite, shared, nonce []byte) (vo.HopKeys, error) {
	var keys vo.HopKeys
	info := append([]byte(hopKeyLabel), byte(suite))
	buf := make([]byte, vo.HopKeysSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nonce, info), buf); err != nil {
		return keys, err
	}
	defer wipeBytes(buf)
	return vo.HopKeysFrom(buf)
}
