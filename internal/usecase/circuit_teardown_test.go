package usecase_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"ikedadada/go-mixway/internal/domain/repository"
	svc "ikedadada/go-mixway/internal/domain/service"
	vo "ikedadada/go-mixway/internal/domain/value_object"
	"ikedadada/go-mixway/internal/usecase"
)

// Destroying a circuit must notify every hop and leave no link state
// behind on any relay, on or off the path.
func TestDestroyReleasesEveryHop(t *testing.T) {
	m := startMixnet(t, 4)
	out, err := m.builder.Handle(context.Background(), usecase.BuildCircuitInput{Hops: 3})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	m.sessions.Put(out.Session)

	onPath := make(map[string]bool)
	for _, id := range out.Circuit.HopIDs() {
		onPath[id.String()] = true
	}
	for _, r := range m.relays {
		want := 0
		if onPath[r.id.String()] {
			want = 1
		}
		if got := r.states.Len(); got != want {
			t.Errorf("relay %s holds %d links, want %d", r.id, got, want)
		}
	}

	dout, err := m.destroyer.Handle(usecase.DestroyCircuitInput{CircuitID: out.Circuit.ID().String()})
	if err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if dout.HopsNotified != 3 {
		t.Errorf("notified %d hops, want 3", dout.HopsNotified)
	}
	waitFor(t, 5*time.Second, func() bool { return m.totalStates() == 0 },
		"relays still hold link state after destroy")

	if _, err := m.circuits.Find(out.Circuit.ID()); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Find after destroy = %v, want ErrNotFound", err)
	}
	if !out.Session.Closed() {
		t.Error("session still open after destroy")
	}
}

// A build that dies partway through must unwind the hops it already
// established, blame the relay that failed, and leave the survivors
// unpunished.
func TestBuildAbortUnwindsEstablishedHops(t *testing.T) {
	m := startMixnet(t, 3)
	phantom := m.addPhantom("10.66.0.1", func(c net.Conn) { c.Close() })

	_, err := m.builder.Handle(context.Background(), usecase.BuildCircuitInput{Hops: 4})
	if err == nil {
		t.Fatal("build through a dead relay succeeded")
	}
	var hf *vo.HandshakeError
	if !errors.As(err, &hf) {
		t.Fatalf("build error %v is not a HandshakeError", err)
	}
	if !hf.Relay.Equal(phantom) {
		t.Errorf("blamed relay %s, want %s", hf.Relay, phantom)
	}

	waitFor(t, 5*time.Second, func() bool { return m.totalStates() == 0 },
		"established hops not unwound after abort")

	if s := m.score(phantom); s >= m.pol.Baseline {
		t.Errorf("phantom score %.2f, want below baseline %.2f", s, m.pol.Baseline)
	}
	for _, r := range m.relays {
		if s := m.score(r.id); s < m.pol.Baseline-0.01 || s > m.pol.Baseline+0.01 {
			t.Errorf("relay %s score %.2f changed by an aborted build, want baseline %.2f", r.id, s, m.pol.Baseline)
		}
	}
	if n := m.sessions.Len(); n != 0 {
		t.Errorf("session table holds %d sessions after abort, want 0", n)
	}
	active, err := m.circuits.ListActive()
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("%d circuits listed after abort, want 0", len(active))
	}
}

// Replaying a forward cell makes the relay tear the whole link down
// rather than process the duplicate.
func TestRelayTearsDownOnReplay(t *testing.T) {
	m := startMixnet(t, 1)
	out, err := m.builder.Handle(context.Background(), usecase.BuildCircuitInput{Hops: 1})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	m.sessions.Put(out.Session)
	circ := out.Circuit

	keys, err := circ.HopKeysAt(0)
	if err != nil {
		t.Fatalf("hop keys: %v", err)
	}
	layer := svc.LayerKey{AEAD: keys.FwdAEAD, MAC: keys.FwdMAC, Seq: 0}
	payload := vo.EncodeDataPayload(&vo.DataPayload{Data: []byte("once only")})
	body, tag, err := m.onion.SealForward(vo.CmdData, []svc.LayerKey{layer}, payload)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	cell := &vo.Cell{Link: circ.Link(), Version: vo.Version, Cmd: vo.CmdData, Seq: 0, Body: body, Tag: tag}

	if err := out.Session.Send(cell); err != nil {
		t.Fatalf("first send: %v", err)
	}
	select {
	case echo := <-out.Session.Payloads():
		if !bytes.Equal(echo, []byte("once only")) {
			t.Fatalf("echo = %q, want %q", echo, "once only")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("echo never arrived")
	}

	// Same link, same sequence number, same ciphertext.
	if err := out.Session.Send(cell); err != nil {
		t.Fatalf("replay send: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool { return out.Session.Err() != nil },
		"session survived a replayed cell")
	if hop := out.Session.FailedHop(); hop != 0 {
		t.Errorf("failed hop = %d, want 0 for a link-level teardown", hop)
	}
	if msg := out.Session.Err().Error(); !strings.Contains(msg, "torn down") {
		t.Errorf("session error %q does not mention the teardown", msg)
	}
	waitFor(t, 5*time.Second, func() bool { return m.totalStates() == 0 },
		"relay kept link state after replay teardown")
}
