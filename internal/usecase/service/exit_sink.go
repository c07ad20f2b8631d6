package service

import (
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// ExitSink consumes reassembled payloads at a circuit's last hop and
// returns the bytes to carry back to the sender, nil for none. A failed
// delivery drops the payload.
type ExitSink interface {
	Deliver(link vo.LinkID, payload []byte) ([]byte, error)
}

// EchoSink returns every payload to its sender. cmd/relay uses it in
// demo mode.
type EchoSink struct{}

func (EchoSink) Deliver(_ vo.LinkID, payload []byte) ([]byte, error) { return payload, nil }

// DiscardSink accepts and drops every payload.
type DiscardSink struct{}

func (DiscardSink) Deliver(vo.LinkID, []byte) ([]byte, error) { return nil, nil }
