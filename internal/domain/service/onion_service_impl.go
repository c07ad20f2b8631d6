package service

import (
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"

	vo "ikedadada/go-mixway/internal/domain/value_object"
)

const (
	layerForward  byte = 0x00
	layerTerminal byte = 0x01

	dirForward  byte = 0x00
	dirBackward byte = 0x01

	// terminalOverhead is the kind byte plus the AEAD tag.
	terminalOverhead = 1 + chacha20poly1305.Overhead
	// wrapOverhead is the kind byte, embedded cell tag, length field and
	// AEAD tag one nesting level adds.
	wrapOverhead = 1 + vo.CellTagSize + 2 + chacha20poly1305.Overhead
)

// onionServiceImpl implements OnionService with ChaCha20-Poly1305 layers
// and keyed BLAKE2b cell tags.
type onionServiceImpl struct{}

// NewOnionService creates an OnionService.
func NewOnionService() OnionService { return onionServiceImpl{} }

// MaxPlaintext returns the largest terminal payload a cell addressed to
// the given 1-based hop depth can carry.
func (onionServiceImpl) MaxPlaintext(depth int) int {
	if depth < 1 {
		return 0
	}
	n := vo.MaxBodySize - terminalOverhead - wrapOverhead*(depth-1)
	if n < 0 {
		return 0
	}
	return n
}

// SealForward builds the nested body for a cell addressed to the last
// layer's hop.
func (s onionServiceImpl) SealForward(cmd vo.CellCommand, layers []LayerKey, payload []byte) ([]byte, [vo.CellTagSize]byte, error) {
	var zero [vo.CellTagSize]byte
	if len(layers) == 0 {
		return nil, zero, fmt.Errorf("onion: no layers")
	}
	if max := s.MaxPlaintext(len(layers)); len(payload) > max {
		return nil, zero, fmt.Errorf("onion: payload %dB over the %dB budget at depth %d: %w",
			len(payload), max, len(layers), vo.ErrCapacity)
	}

	plain := make([]byte, 0, 1+len(payload))
	plain = append(plain, layerTerminal)
	plain = append(plain, payload...)

	body, tag, err := sealLayer(layers[len(layers)-1], dirForward, cmd, plain)
	if err != nil {
		return nil, zero, err
	}
	for i := len(layers) - 2; i >= 0; i-- {
		body, tag, err = sealLayer(layers[i], dirForward, cmd, forwardLayerBytes(tag, body))
		if err != nil {
			return nil, zero, err
		}
	}
	return body, tag, nil
}

// PeelForward authenticates and opens one forward layer at a relay.
func (onionServiceImpl) PeelForward(key LayerKey, cmd vo.CellCommand, body []byte, tag [vo.CellTagSize]byte) (*ForwardLayer, error) {
	plain, err := openLayer(key, dirForward, cmd, body, tag)
	if err != nil {
		return nil, err
	}
	return parseForwardLayer(plain)
}

// OriginBackward seals a terminal backward payload at its origin hop.
func (onionServiceImpl) OriginBackward(key LayerKey, cmd vo.CellCommand, payload []byte) ([]byte, [vo.CellTagSize]byte, error) {
	var zero [vo.CellTagSize]byte
	if len(payload)+terminalOverhead > vo.MaxBodySize {
		return nil, zero, fmt.Errorf("onion: backward payload %dB over the cell budget: %w", len(payload), vo.ErrCapacity)
	}
	plain := make([]byte, 0, 1+len(payload))
	plain = append(plain, layerTerminal)
	plain = append(plain, payload...)
	return sealLayer(key, dirBackward, cmd, plain)
}

// WrapBackward adds one backward layer around a downstream cell's body
// and tag.
func (onionServiceImpl) WrapBackward(key LayerKey, cmd vo.CellCommand, innerTag [vo.CellTagSize]byte, inner []byte) ([]byte, [vo.CellTagSize]byte, error) {
	var zero [vo.CellTagSize]byte
	if len(inner)+wrapOverhead > vo.MaxBodySize {
		return nil, zero, fmt.Errorf("onion: wrapped body %dB over the cell budget: %w", len(inner), vo.ErrCapacity)
	}
	return sealLayer(key, dirBackward, cmd, forwardLayerBytes(innerTag, inner))
}

// PeelBackward unwinds a backward cell at the client. On failure the
// returned index names the hop whose layer broke, so the caller can
// attribute the violation.
func (onionServiceImpl) PeelBackward(layers []LayerKey, cmd vo.CellCommand, body []byte, tag [vo.CellTagSize]byte) (int, []byte, error) {
	if len(layers) == 0 {
		return -1, nil, fmt.Errorf("onion: no layers")
	}
	for i, key := range layers {
		plain, err := openLayer(key, dirBackward, cmd, body, tag)
		if err != nil {
			return i, nil, fmt.Errorf("onion: hop %d: %w", i+1, err)
		}
		fl, err := parseForwardLayer(plain)
		if err != nil {
			return i, nil, fmt.Errorf("onion: hop %d: %w", i+1, err)
		}
		if fl.Terminal {
			return i, fl.Payload, nil
		}
		body, tag = fl.Next, fl.NextTag
	}
	return len(layers) - 1, nil, fmt.Errorf("onion: backward cell nested deeper than the circuit: %w", vo.ErrIntegrity)
}

// forwardLayerBytes encodes kind, embedded tag, length and ciphertext of
// one nesting level.
func forwardLayerBytes(tag [vo.CellTagSize]byte, body []byte) []byte {
	out := make([]byte, 0, 1+vo.CellTagSize+2+len(body))
	out = append(out, layerForward)
	out = append(out, tag[:]...)
	var ln [2]byte
	binary.BigEndian.PutUint16(ln[:], uint16(len(body)))
	out = append(out, ln[:]...)
	return append(out, body...)
}

// parseForwardLayer splits an opened layer by its kind byte.
func parseForwardLayer(plain []byte) (*ForwardLayer, error) {
	if len(plain) == 0 {
		return nil, fmt.Errorf("onion: empty layer")
	}
	switch plain[0] {
	case layerTerminal:
		return &ForwardLayer{Terminal: true, Payload: plain[1:]}, nil
	case layerForward:
		if len(plain) < 1+vo.CellTagSize+2 {
			return nil, fmt.Errorf("onion: forward layer truncated")
		}
		n := int(binary.BigEndian.Uint16(plain[1+vo.CellTagSize : 1+vo.CellTagSize+2]))
		rest := plain[1+vo.CellTagSize+2:]
		if len(rest) != n {
			return nil, fmt.Errorf("onion: forward layer length %d, carried %d", n, len(rest))
		}
		fl := &ForwardLayer{Next: rest}
		copy(fl.NextTag[:], plain[1:1+vo.CellTagSize])
		return fl, nil
	default:
		return nil, fmt.Errorf("onion: unknown layer kind 0x%02x", plain[0])
	}
}

// sealLayer encrypts one layer and computes the cell tag over the
// ciphertext.
func sealLayer(key LayerKey, dir byte, cmd vo.CellCommand, plain []byte) ([]byte, [vo.CellTagSize]byte, error) {
	var tag [vo.CellTagSize]byte
	aead, err := chacha20poly1305.New(key.AEAD[:])
	if err != nil {
		return nil, tag, err
	}
	ct := aead.Seal(nil, layerNonce(dir, key.Seq), plain, layerAAD(cmd, key.Seq))
	tag, err = layerTag(key.MAC, cmd, key.Seq, ct)
	return ct, tag, err
}

// openLayer verifies the cell tag in constant time, then decrypts. Both
// failures surface as ErrIntegrity; the tag check runs first so a
// tampered cell never reaches the cipher.
func openLayer(key LayerKey, dir byte, cmd vo.CellCommand, body []byte, tag [vo.CellTagSize]byte) ([]byte, error) {
	want, err := layerTag(key.MAC, cmd, key.Seq, body)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(want[:], tag[:]) != 1 {
		return nil, vo.ErrIntegrity
	}
	aead, err := chacha20poly1305.New(key.AEAD[:])
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, layerNonce(dir, key.Seq), body, layerAAD(cmd, key.Seq))
	if err != nil {
		return nil, vo.ErrIntegrity
	}
	return plain, nil
}

// layerNonce is direction byte, three zero bytes, then the big-endian
// sequence number.
func layerNonce(dir byte, seq uint64) []byte {
	n := make([]byte, chacha20poly1305.NonceSize)
	n[0] = dir
	binary.BigEndian.PutUint64(n[4:], seq)
	return n
}

// layerAAD binds version, command and sequence into the AEAD.
func layerAAD(cmd vo.CellCommand, seq uint64) []byte {
	aad := make([]byte, 10)
	aad[0] = vo.Version
	aad[1] = byte(cmd)
	binary.BigEndian.PutUint64(aad[2:], seq)
	return aad
}

// layerTag is the keyed BLAKE2b cell tag over version, command, sequence,
// length and ciphertext, the same string a decoded cell authenticates.
func layerTag(key vo.SymKey, cmd vo.CellCommand, seq uint64, body []byte) ([vo.CellTagSize]byte, error) {
	var tag [vo.CellTagSize]byte
	m, err := blake2b.New(vo.CellTagSize, key[:])
	if err != nil {
		return tag, err
	}
	m.Write([]byte{vo.Version, byte(cmd)})
	var b8 [8]byte
	binary.BigEndian.PutUint64(b8[:], seq)
	m.Write(b8[:])
	var b2 [2]byte
	binary.BigEndian.PutUint16(b2[:], uint16(len(body)))
	m.Write(b2[:])
	m.Write(body)
	copy(tag[:], m.Sum(nil))
	return tag, nil
}
