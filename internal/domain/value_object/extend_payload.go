package value_object

import "fmt"

// ExtendPayload instructs the current tail relay to extend the circuit:
// dial NextHop, forward Create verbatim, and return the Created answer up
// the tunnel. The embedded Create keeps the new hop's key exchange
// end-to-end with the client.
type ExtendPayload struct {
	NextHop string
	Create  CreatePayload
}

// EncodeExtendPayload serializes p as len(1) || NextHop || Create.
func EncodeExtendPayload(p *ExtendPayload) ([]byte, error) {
	if len(p.NextHop) == 0 || len(p.NextHop) > 255 {
		return nil, fmt.Errorf("next hop length %d out of range", len(p.NextHop))
	}
	out := make([]byte, 0, 1+len(p.NextHop)+CreatePayloadSize)
	out = append(out, byte(len(p.NextHop)))
	out = append(out, p.NextHop...)
	return append(out, EncodeCreatePayload(&p.Create)...), nil
}

// DecodeExtendPayload parses and validates the layout.
func DecodeExtendPayload(b []byte) (*ExtendPayload, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("extend payload too short")
	}
	n := int(b[0])
	if n == 0 || len(b) != 1+n+CreatePayloadSize {
		return nil, fmt.Errorf("extend payload malformed: hop len %d, total %d", n, len(b))
	}
	create, err := DecodeCreatePayload(b[1+n:])
	if err != nil {
		return nil, err
	}
	return &ExtendPayload{NextHop: string(b[1 : 1+n]), Create: *create}, nil
}
