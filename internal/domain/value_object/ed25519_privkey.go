package value_object

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// Ed25519PrivKey is an identity signing key.
type Ed25519PrivKey struct {
	key ed25519.PrivateKey
}

// NewEd25519PrivKey generates a fresh identity key.
func NewEd25519PrivKey() (*Ed25519PrivKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Ed25519PrivKey{key: priv}, nil
}

// Ed25519PrivKeyFromPEM parses a PKCS8 PEM block.
func Ed25519PrivKeyFromPEM(pemBytes []byte) (*Ed25519PrivKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM data")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	edKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("expected ed25519.PrivateKey, got %T", key)
	}
	return &Ed25519PrivKey{key: edKey}, nil
}

// ToPEM encodes the key as a PKCS8 PEM block.
func (k *Ed25519PrivKey) ToPEM() []byte {
	if k == nil || k.key == nil {
		return nil
	}
	keyBytes, err := x509.MarshalPKCS8PrivateKey(k.key)
	if err != nil {
		return nil
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: keyBytes,
	})
}

// PublicKey returns the corresponding public key.
func (k *Ed25519PrivKey) PublicKey() Ed25519PubKey {
	if k == nil || k.key == nil {
		return Ed25519PubKey{}
	}
	return Ed25519PubKey{PublicKey: k.key.Public().(ed25519.PublicKey)}
}

// Sign signs msg with the identity key.
func (k *Ed25519PrivKey) Sign(msg []byte) []byte {
	if k == nil || k.key == nil {
		return nil
	}
	return ed25519.Sign(k.key, msg)
}
