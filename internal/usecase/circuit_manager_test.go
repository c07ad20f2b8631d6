package usecase_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	vo "ikedadada/go-mixway/internal/domain/value_object"
	"ikedadada/go-mixway/internal/usecase"
)

// A relay that corrupts backward traffic must be the one the manager
// blames: its circuit fails, its score drops, and it ends up excluded,
// while the honest hops on the same path keep their standing.
func TestManagerBlamesCorruptingRelay(t *testing.T) {
	m := startMixnet(t, 3)
	mgr := m.manager(usecase.ManagerConfig{
		BuildTimeout:     5 * time.Second,
		MaxBuildAttempts: 2,
		BackoffBase:      10 * time.Millisecond,
		BackoffCap:       50 * time.Millisecond,
		RotationInterval: time.Hour,
		TickInterval:     10 * time.Millisecond,
	})

	info, err := mgr.Create(context.Background(), usecase.CreateCircuitInput{Hops: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before := make([]float64, len(info.Hops))
	for i, id := range info.Hops {
		before[i] = m.score(m.relayByID(id).id)
	}

	hop2 := m.relayByID(info.Hops[1])
	hop2.tamper.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = mgr.Send(ctx, usecase.SendDataInput{
		CircuitID: info.ID,
		Data:      []byte("will not survive"),
		AwaitAck:  true,
	})
	if err == nil {
		t.Fatal("send over a corrupting relay succeeded")
	}
	if !errors.Is(err, vo.ErrIntegrity) {
		t.Errorf("send error %v does not match ErrIntegrity", err)
	}
	if !hop2.tampered.Load() {
		t.Fatal("tamper conn never fired")
	}

	waitFor(t, 5*time.Second, func() bool {
		got, err := mgr.Inspect(info.ID)
		return err == nil && got.State == vo.StateFailed.String()
	}, "circuit never moved to FAILED after corruption")

	if s := m.score(hop2.id); s >= before[1] {
		t.Errorf("corrupting relay score %.2f, want below %.2f", s, before[1])
	}
	if st := m.relayInfo(hop2.id).Status; st != vo.RelayExcluded {
		t.Errorf("corrupting relay status %s, want %s", st, vo.RelayExcluded)
	}
	for _, i := range []int{0, 2} {
		id := m.relayByID(info.Hops[i]).id
		if s := m.score(id); s < before[i]-0.05 {
			t.Errorf("honest hop %d score %.2f dropped from %.2f", i+1, s, before[i])
		}
	}
	if n := m.sessions.Len(); n != 0 {
		t.Errorf("session table holds %d sessions after failure, want 0", n)
	}
}

// When every build attempt fails the manager reports exhaustion instead
// of falling back, and each attempt blames a different relay.
func TestManagerRetriesThenGivesUp(t *testing.T) {
	m := startMixnet(t, 0)
	slam := func(c net.Conn) { c.Close() }
	phantoms := []vo.RelayID{
		m.addPhantom("10.71.0.1", slam),
		m.addPhantom("10.72.0.1", slam),
		m.addPhantom("10.73.0.1", slam),
	}
	mgr := m.manager(usecase.ManagerConfig{
		BuildTimeout:     5 * time.Second,
		MaxBuildAttempts: 2,
		BackoffBase:      5 * time.Millisecond,
		BackoffCap:       20 * time.Millisecond,
		RotationInterval: time.Hour,
		TickInterval:     time.Hour,
	})

	_, err := mgr.Create(context.Background(), usecase.CreateCircuitInput{Hops: 1})
	if err == nil {
		t.Fatal("create over dead relays succeeded")
	}
	if !errors.Is(err, vo.ErrBuildAttemptsExhausted) {
		t.Errorf("create error %v does not match ErrBuildAttemptsExhausted", err)
	}
	var be *vo.BuildError
	if !errors.As(err, &be) {
		t.Fatalf("create error %v is not a BuildError", err)
	}
	if be.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", be.Attempts)
	}

	blamed := 0
	for _, id := range phantoms {
		if m.score(id) < m.pol.Baseline {
			blamed++
		}
	}
	if blamed != 2 {
		t.Errorf("%d phantoms blamed, want one per attempt (2)", blamed)
	}
	if n := m.sessions.Len(); n != 0 {
		t.Errorf("session table holds %d sessions after exhaustion, want 0", n)
	}
	list, err := mgr.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("%d circuits listed after exhaustion, want 0", len(list))
	}
}

// Near its rotation deadline a circuit gets replaced: a fresh one comes
// up and the old one is destroyed, without the caller doing anything.
func TestManagerRotatesNearDeadline(t *testing.T) {
	m := startMixnet(t, 3)
	mgr := m.manager(usecase.ManagerConfig{
		BuildTimeout:     5 * time.Second,
		MaxBuildAttempts: 2,
		BackoffBase:      10 * time.Millisecond,
		BackoffCap:       50 * time.Millisecond,
		RotationInterval: 250 * time.Millisecond,
		RotationGrace:    50 * time.Millisecond,
		TickInterval:     20 * time.Millisecond,
	})

	info, err := mgr.Create(context.Background(), usecase.CreateCircuitInput{Hops: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		if _, err := mgr.Inspect(info.ID); err == nil {
			return false // old circuit still around
		}
		list, err := mgr.List()
		if err != nil {
			return false
		}
		for _, c := range list {
			if c.ID != info.ID && c.State == vo.StateEstablished.String() {
				return true
			}
		}
		return false
	}, "circuit was never rotated out")
}
