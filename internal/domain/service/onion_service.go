package service

import (
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// LayerKey is one hop's directional key material plus the sequence number
// stamped on the cell at that hop. The sequence feeds both the AEAD nonce
// and the cell tag, so a replayed or reordered cell fails authentication.
type LayerKey struct {
	AEAD vo.SymKey
	MAC  vo.SymKey
	Seq  uint64
}

// ForwardLayer is one opened forward layer: either a terminal payload for
// this hop or the pre-authenticated material to pass downstream.
type ForwardLayer struct {
	Terminal bool
	Payload  []byte
	NextTag  [vo.CellTagSize]byte
	Next     []byte
}

// OnionService layers and unlayers cell bodies. Each layer is AEAD-sealed
// under one hop's directional key; forward layers additionally carry the
// next hop's cell tag, precomputed by the client, so every relay can
// authenticate what it forwards without ever seeing inside it.
type OnionService interface {
	// MaxPlaintext returns the largest terminal payload a cell addressed
	// to the given 1-based hop depth can carry.
	MaxPlaintext(depth int) int

	// SealForward builds the nested body for a cell addressed to the
	// last layer's hop. Layers run nearest first, each holding that
	// hop's forward keys and the sequence it will see.
	SealForward(cmd vo.CellCommand, layers []LayerKey, payload []byte) ([]byte, [vo.CellTagSize]byte, error)

	// PeelForward authenticates and opens one forward layer at a relay.
	PeelForward(key LayerKey, cmd vo.CellCommand, body []byte, tag [vo.CellTagSize]byte) (*ForwardLayer, error)

	// OriginBackward seals a terminal backward payload at its origin hop.
	OriginBackward(key LayerKey, cmd vo.CellCommand, payload []byte) ([]byte, [vo.CellTagSize]byte, error)

	// WrapBackward adds one backward layer around a downstream cell's
	// body and tag on its way to the client.
	WrapBackward(key LayerKey, cmd vo.CellCommand, innerTag [vo.CellTagSize]byte, inner []byte) ([]byte, [vo.CellTagSize]byte, error)

	// PeelBackward unwinds a backward cell at the client. Layers run
	// nearest first with each hop's backward keys and expected sequence;
	// the return names the 0-based hop the payload originated at, or on
	// failure the hop whose layer did not verify.
	PeelBackward(layers []LayerKey, cmd vo.CellCommand, body []byte, tag [vo.CellTagSize]byte) (int, []byte, error)
}
