package value_object

import "fmt"

const dataFlagMore = 0x01

// DataPayload is one application data fragment. More marks that further
// fragments of the same payload follow; the receiver reassembles until a
// fragment without it.
type DataPayload struct {
	More bool
	Data []byte
}

// EncodeDataPayload serializes p as flags(1) || data.
func EncodeDataPayload(p *DataPayload) []byte {
	out := make([]byte, 1+len(p.Data))
	if p.More {
		out[0] |= dataFlagMore
	}
	copy(out[1:], p.Data)
	return out
}

// DecodeDataPayload parses flags(1) || data.
func DecodeDataPayload(b []byte) (*DataPayload, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("data payload too short")
	}
	if b[0]&^dataFlagMore != 0 {
		return nil, fmt.Errorf("data payload has unknown flags 0x%02x", b[0])
	}
	return &DataPayload{
		More: b[0]&dataFlagMore != 0,
		Data: append([]byte(nil), b[1:]...),
	}, nil
}
