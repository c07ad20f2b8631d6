package value_object

import (
	"encoding/binary"
	"fmt"
)

// AckPayload confirms end-to-end delivery of one reassembled payload,
// carrying the total byte count the exit accepted.
type AckPayload struct {
	Received uint32
}

// EncodeAckPayload serializes p as a big-endian count.
func EncodeAckPayload(p *AckPayload) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, p.Received)
	return out
}

// DecodeAckPayload parses the fixed layout.
func DecodeAckPayload(b []byte) (*AckPayload, error) {
	if len(b) != 4 {
		return nil, fmt.Errorf("ack payload must be 4B, got %d", len(b))
	}
	return &AckPayload{Received: binary.BigEndian.Uint32(b)}, nil
}
