package entity

import (
	"math"
	"time"

	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// ReputationPolicy holds the decay and weighting parameters for relay
// scores. A score decays toward Baseline with the configured half-life;
// event deltas apply after decay and the result clamps to [0, Max].
type ReputationPolicy struct {
	Baseline         float64
	Max              float64
	HalfLife         time.Duration
	BuildSuccess     float64
	RelaySuccess     float64
	HandshakePenalty float64
	TimeoutPenalty   float64
	IntegrityPenalty float64
	DegradeThreshold float64
	ExcludeCooldown  time.Duration
}

// Decayed returns the score after elapsed time with no events applied.
func (p ReputationPolicy) Decayed(score float64, elapsed time.Duration) float64 {
	if elapsed <= 0 || p.HalfLife <= 0 {
		return score
	}
	f := math.Exp2(-elapsed.Seconds() / p.HalfLife.Seconds())
	return p.Baseline + (score-p.Baseline)*f
}

// Delta returns the signed score change for an event kind.
func (p ReputationPolicy) Delta(kind vo.ReputationEventKind) float64 {
	switch kind {
	case vo.EventBuildSuccess:
		return p.BuildSuccess
	case vo.EventRelaySuccess:
		return p.RelaySuccess
	case vo.EventHandshakeFailure:
		return -p.HandshakePenalty
	case vo.EventTimeout:
		return -p.TimeoutPenalty
	case vo.EventIntegrityViolation:
		return -p.IntegrityPenalty
	default:
		return 0
	}
}

// Clamp bounds a score to [0, Max].
func (p ReputationPolicy) Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > p.Max {
		return p.Max
	}
	return score
}
