package value_object

import "fmt"

// DestroyReason says why a circuit hop is being torn down.
type DestroyReason byte

const (
	ReasonFinished DestroyReason = iota + 1
	ReasonTimeout
	ReasonProtocol
	ReasonCapacity
)

func (r DestroyReason) String() string {
	switch r {
	case ReasonFinished:
		return "FINISHED"
	case ReasonTimeout:
		return "TIMEOUT"
	case ReasonProtocol:
		return "PROTOCOL"
	case ReasonCapacity:
		return "CAPACITY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(r))
	}
}

// DestroyPayload carries the teardown reason.
type DestroyPayload struct {
	Reason DestroyReason
}

// EncodeDestroyPayload serializes p as a single byte.
func EncodeDestroyPayload(p *DestroyPayload) []byte {
	return []byte{byte(p.Reason)}
}

// DecodeDestroyPayload parses the single-byte layout. An empty body reads
// as FINISHED for tolerance with minimal senders.
func DecodeDestroyPayload(b []byte) (*DestroyPayload, error) {
	if len(b) == 0 {
		return &DestroyPayload{Reason: ReasonFinished}, nil
	}
	if len(b) != 1 {
		return nil, fmt.Errorf("destroy payload must be 1B, got %d", len(b))
	}
	return &DestroyPayload{Reason: DestroyReason(b[0])}, nil
}
