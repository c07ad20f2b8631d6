package entity_test

import (
	"math"
	"testing"
	"time"

	"ikedadada/go-mixway/internal/domain/entity"
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

func testPolicy() entity.ReputationPolicy {
	return entity.ReputationPolicy{
		Baseline:         1.0,
		Max:              100,
		HalfLife:         time.Hour,
		BuildSuccess:     1.0,
		RelaySuccess:     0.2,
		HandshakePenalty: 2,
		TimeoutPenalty:   1,
		IntegrityPenalty: 10,
		DegradeThreshold: 0.5,
		ExcludeCooldown:  10 * time.Minute,
	}
}

func testRelay(t *testing.T, score float64, at vo.TimeStamp) *entity.Relay {
	t.Helper()
	ep, err := vo.NewEndpoint("10.0.0.1", 5000)
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	return entity.NewRelay(vo.NewRelayID(), ep, vo.Ed25519PubKey{}, vo.VRFPublicKey{}, 100, score, at)
}

func mustEvent(t *testing.T, r *entity.Relay, kind vo.ReputationEventKind, at vo.TimeStamp) vo.ReputationEvent {
	t.Helper()
	ev, err := vo.NewReputationEvent(r.ID(), kind, at)
	if err != nil {
		t.Fatalf("NewReputationEvent: %v", err)
	}
	return ev
}

func TestRelaySnapshotDecaysTowardBaseline(t *testing.T) {
	pol := testPolicy()
	t0 := vo.TimeStampFrom(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	r := testRelay(t, 11, t0)

	tests := []struct {
		name    string
		elapsed time.Duration
		want    float64
	}{
		{"immediate", 0, 11},
		{"one half-life", time.Hour, 6},
		{"two half-lives", 2 * time.Hour, 3.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := r.SnapshotAt(t0.Add(tt.elapsed), pol)
			if math.Abs(info.Score-tt.want) > 1e-9 {
				t.Errorf("score after %v = %v, want %v", tt.elapsed, info.Score, tt.want)
			}
		})
	}
}

func TestRelayApplyEventDeltas(t *testing.T) {
	pol := testPolicy()
	t0 := vo.Now()

	tests := []struct {
		name string
		kind vo.ReputationEventKind
		want float64
	}{
		{"build success", vo.EventBuildSuccess, 51},
		{"relay success", vo.EventRelaySuccess, 50.2},
		{"handshake failure", vo.EventHandshakeFailure, 48},
		{"timeout", vo.EventTimeout, 49},
		{"integrity violation", vo.EventIntegrityViolation, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRelay(t, 50, t0)
			info := r.ApplyEvent(mustEvent(t, r, tt.kind, t0), pol)
			if math.Abs(info.Score-tt.want) > 1e-9 {
				t.Errorf("score = %v, want %v", info.Score, tt.want)
			}
		})
	}
}

func TestRelayIntegrityViolationExcludes(t *testing.T) {
	pol := testPolicy()
	t0 := vo.Now()
	r := testRelay(t, 50, t0)

	info := r.ApplyEvent(mustEvent(t, r, vo.EventIntegrityViolation, t0), pol)
	if info.Status != vo.RelayExcluded {
		t.Fatalf("status = %v, want excluded", info.Status)
	}
	if got := r.SnapshotAt(t0.Add(5*time.Minute), pol); got.Status != vo.RelayExcluded {
		t.Errorf("status during cool-down = %v, want excluded", got.Status)
	}
	if got := r.SnapshotAt(t0.Add(11*time.Minute), pol); got.Status != vo.RelayActive {
		t.Errorf("status after cool-down = %v, want active", got.Status)
	}
}

func TestRelayScoreClamps(t *testing.T) {
	pol := testPolicy()
	t0 := vo.Now()

	r := testRelay(t, 5, t0)
	if info := r.ApplyEvent(mustEvent(t, r, vo.EventIntegrityViolation, t0), pol); info.Score != 0 {
		t.Errorf("score = %v, want clamp to 0", info.Score)
	}

	r = testRelay(t, 99.5, t0)
	if info := r.ApplyEvent(mustEvent(t, r, vo.EventBuildSuccess, t0), pol); info.Score != 100 {
		t.Errorf("score = %v, want clamp to 100", info.Score)
	}
}

func TestRelayDegradesBelowThreshold(t *testing.T) {
	pol := testPolicy()
	t0 := vo.Now()
	r := testRelay(t, 0.2, t0)

	if info := r.SnapshotAt(t0, pol); info.Status != vo.RelayDegraded {
		t.Errorf("status = %v, want degraded", info.Status)
	}
}

func TestRelayRefreshPreservesReputation(t *testing.T) {
	pol := testPolicy()
	t0 := vo.Now()
	r := testRelay(t, 2, t0)
	r.ApplyEvent(mustEvent(t, r, vo.EventBuildSuccess, t0), pol)

	ep, err := vo.NewEndpoint("10.0.0.2", 6000)
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	ticket := vo.LotteryTicket{Relay: r.ID(), Epoch: 7}
	r.Refresh(ep, 250, t0.Add(time.Minute), &ticket)

	info := r.SnapshotAt(t0, pol)
	if math.Abs(info.Score-3) > 1e-9 {
		t.Errorf("score after refresh = %v, want 3", info.Score)
	}
	if info.Endpoint.String() != "10.0.0.2:6000" {
		t.Errorf("endpoint = %v, want 10.0.0.2:6000", info.Endpoint)
	}
	if info.Capacity != 250 {
		t.Errorf("capacity = %d, want 250", info.Capacity)
	}
	if !info.HasTicket || info.Ticket.Epoch != 7 {
		t.Errorf("ticket not carried over: has=%v epoch=%d", info.HasTicket, info.Ticket.Epoch)
	}

	r.Refresh(ep, 250, t0.Add(2*time.Minute), nil)
	if info := r.SnapshotAt(t0, pol); info.HasTicket {
		t.Errorf("ticket should be dropped when the feed carries none")
	}
}
