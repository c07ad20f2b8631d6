package value_object

import (
	"errors"
	"fmt"
)

// Failure kinds surfaced across the application boundary. Lower layers wrap
// transport and crypto detail behind these; callers match with errors.Is.
var (
	// ErrInsufficientRelays means the eligible relay set is smaller than the
	// requested path length.
	ErrInsufficientRelays = errors.New("not enough eligible relays")

	// ErrConstraintUnsatisfiable means enough relays exist but no path
	// satisfies the diversity constraints.
	ErrConstraintUnsatisfiable = errors.New("path constraints unsatisfiable")

	// ErrIntegrity means a cell failed tag verification or layer decryption.
	ErrIntegrity = errors.New("cell integrity violation")

	// ErrSequence means a cell arrived out of the strict per-direction order.
	ErrSequence = errors.New("cell sequence violation")

	// ErrCapacity means a local table or arena is full.
	ErrCapacity = errors.New("capacity exhausted")

	// ErrBuildAttemptsExhausted means every build attempt failed and the
	// caller must not fall back to an unprotected path. BuildError
	// matches it via errors.Is.
	ErrBuildAttemptsExhausted = errors.New("build attempts exhausted")
)

// HandshakeError reports a failed handshake step at one hop. Hop is the
// 1-based position on the path; Relay names the blamed relay so callers
// can exclude it from the next draw.
type HandshakeError struct {
	Hop    int
	Relay  RelayID
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("handshake with hop %d failed: %s: %v", e.Hop, e.Reason, e.Err)
	}
	return fmt.Sprintf("handshake with hop %d failed: %s", e.Hop, e.Reason)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// SequenceError carries the expected and received sequence numbers.
// errors.Is(err, ErrSequence) matches it.
type SequenceError struct {
	Expected uint64
	Got      uint64
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("sequence violation: expected %d, got %d", e.Expected, e.Got)
}

func (e *SequenceError) Is(target error) bool { return target == ErrSequence }

// BuildError reports an exhausted circuit build, wrapping the last attempt's
// failure.
type BuildError struct {
	Attempts int
	Last     error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("circuit build failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *BuildError) Unwrap() error { return e.Last }

func (e *BuildError) Is(target error) bool { return target == ErrBuildAttemptsExhausted }
