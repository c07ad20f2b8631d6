package service

import (
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// ClientHandshake is the client's ephemeral half of one hop handshake,
// alive between Begin and Finish.
type ClientHandshake struct {
	suite vo.Suite
	priv  [32]byte
	pub   [32]byte
	nonce [16]byte
}

// Wipe zeroes the ephemeral secret. Finish calls it; abandoning a
// handshake should too.
func (h *ClientHandshake) Wipe() {
	for i := range h.priv {
		h.priv[i] = 0
	}
}

// HandshakeService runs the telescoping key exchange: one Create/Created
// round per hop, authenticated by the relay's identity key, yielding the
// same four directional keys on both ends. Neither long-term key can
// recover the session keys afterwards.
type HandshakeService interface {
	// Begin starts the client side, returning the hello payload and the
	// ephemeral state Finish consumes.
	Begin(suite vo.Suite) (*ClientHandshake, *vo.CreatePayload, error)

	// Finish checks the relay's signed answer against its descriptor
	// identity and derives the hop keys. The signature is verified
	// before anything else is trusted; the ephemeral state is wiped.
	Finish(hs *ClientHandshake, answer *vo.CreatedPayload, identity vo.Ed25519PubKey) (vo.HopKeys, error)

	// Respond runs the relay side of one Create, producing the signed
	// answer and the matching hop keys.
	Respond(hello *vo.CreatePayload, identity *vo.Ed25519PrivKey) (vo.HopKeys, *vo.CreatedPayload, error)
}
