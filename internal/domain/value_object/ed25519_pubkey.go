package value_object

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// Ed25519PubKey is a relay or directory identity public key.
type Ed25519PubKey struct{ ed25519.PublicKey }

func Ed25519PubKeyFromPEM(pemBytes []byte) (Ed25519PubKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return Ed25519PubKey{}, errors.New("no PEM data")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return Ed25519PubKey{}, err
	}
	ed25519Pub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return Ed25519PubKey{}, errors.New("not Ed25519 key")
	}
	return Ed25519PubKey{PublicKey: ed25519Pub}, nil
}

// Ed25519PubKeyFromBytes wraps a raw 32-byte key as carried in directory
// documents.
func Ed25519PubKeyFromBytes(b []byte) (Ed25519PubKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return Ed25519PubKey{}, fmt.Errorf("ed25519 public key must be %dB, got %d", ed25519.PublicKeySize, len(b))
	}
	return Ed25519PubKey{PublicKey: ed25519.PublicKey(append([]byte(nil), b...))}, nil
}

func (k Ed25519PubKey) ToPEM() []byte {
	b, _ := x509.MarshalPKIXPublicKey(k.PublicKey)
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: b})
}

// Bytes returns the raw 32-byte key.
func (k Ed25519PubKey) Bytes() []byte { return append([]byte(nil), k.PublicKey...) }

// Verify checks an Ed25519 signature over msg.
func (k Ed25519PubKey) Verify(msg, sig []byte) bool {
	if len(k.PublicKey) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(k.PublicKey, msg, sig)
}
