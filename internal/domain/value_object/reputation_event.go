package value_object

import "fmt"

// ReputationEventKind classifies an observed relay outcome.
type ReputationEventKind byte

const (
	EventBuildSuccess ReputationEventKind = iota + 1
	EventRelaySuccess
	EventHandshakeFailure
	EventTimeout
	EventIntegrityViolation
)

func (k ReputationEventKind) String() string {
	switch k {
	case EventBuildSuccess:
		return "BUILD_SUCCESS"
	case EventRelaySuccess:
		return "RELAY_SUCCESS"
	case EventHandshakeFailure:
		return "HANDSHAKE_FAILURE"
	case EventTimeout:
		return "TIMEOUT"
	case EventIntegrityViolation:
		return "INTEGRITY_VIOLATION"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(k))
	}
}

func (k ReputationEventKind) IsValid() bool {
	switch k {
	case EventBuildSuccess, EventRelaySuccess, EventHandshakeFailure, EventTimeout, EventIntegrityViolation:
		return true
	default:
		return false
	}
}

// ReputationEvent records one relay outcome. Reputation changes only by
// applying events; nothing mutates scores directly.
type ReputationEvent struct {
	Relay RelayID
	Kind  ReputationEventKind
	At    TimeStamp
}

func NewReputationEvent(relay RelayID, kind ReputationEventKind, at TimeStamp) (ReputationEvent, error) {
	if !kind.IsValid() {
		return ReputationEvent{}, fmt.Errorf("invalid reputation event kind %d", byte(kind))
	}
	return ReputationEvent{Relay: relay, Kind: kind, At: at}, nil
}
