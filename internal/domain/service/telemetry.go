package service

import (
	"time"

	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// TelemetrySink receives protocol counters. Implementations must be safe
// for concurrent use; callers never block on a sink.
type TelemetrySink interface {
	CircuitBuilt(hops int, elapsed time.Duration)
	CircuitFailed(reason string)
	CircuitDestroyed(reason string)
	CellRelayed(cmd vo.CellCommand)
	CellDropped(reason string)
	HandshakeDone(elapsed time.Duration)
	RoundTripDone(elapsed time.Duration)
	ActiveCircuits(delta int)
	ReputationEvent(kind vo.ReputationEventKind)
}

// NopTelemetry discards every measurement.
type NopTelemetry struct{}

func (NopTelemetry) CircuitBuilt(int, time.Duration) {}

func (NopTelemetry) CircuitFailed(string) {}

func (NopTelemetry) CircuitDestroyed(string) {}

func (NopTelemetry) CellRelayed(vo.CellCommand) {}

func (NopTelemetry) CellDropped(string) {}

func (NopTelemetry) HandshakeDone(time.Duration) {}

func (NopTelemetry) RoundTripDone(time.Duration) {}

func (NopTelemetry) ActiveCircuits(int) {}

func (NopTelemetry) ReputationEvent(vo.ReputationEventKind) {}
