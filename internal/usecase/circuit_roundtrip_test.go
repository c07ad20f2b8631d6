package usecase_test

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	vo "ikedadada/go-mixway/internal/domain/value_object"
	"ikedadada/go-mixway/internal/usecase"
)

// Builds circuits of several depths over live relays, pushes a payload
// to the echo exit and reads it back, then tears the circuit down and
// checks that no relay keeps state for it.
func TestCircuitRoundtrip(t *testing.T) {
	m := startMixnet(t, 6)
	for _, hops := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("%d_hops", hops), func(t *testing.T) {
			out, err := m.builder.Handle(context.Background(), usecase.BuildCircuitInput{Hops: hops})
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			m.sessions.Put(out.Session)
			circ := out.Circuit
			if got := circ.State(); got != vo.StateEstablished {
				t.Fatalf("state = %s, want %s", got, vo.StateEstablished)
			}
			if got := circ.EstablishedHops(); got != hops {
				t.Fatalf("established hops = %d, want %d", got, hops)
			}

			msg := []byte(fmt.Sprintf("ping through %d hops", hops))
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			sent, err := m.sender.Handle(ctx, usecase.SendDataInput{
				CircuitID: circ.ID().String(),
				Data:      msg,
				AwaitAck:  true,
			})
			if err != nil {
				t.Fatalf("send: %v", err)
			}
			if sent.BytesSent != len(msg) || sent.Fragments != 1 {
				t.Errorf("sent %d bytes in %d fragments, want %d in 1", sent.BytesSent, sent.Fragments, len(msg))
			}
			if sent.Acked != uint32(len(msg)) {
				t.Errorf("acked %d bytes, want %d", sent.Acked, len(msg))
			}

			select {
			case echo := <-out.Session.Payloads():
				if !bytes.Equal(echo, msg) {
					t.Errorf("echo = %q, want %q", echo, msg)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("echo never arrived")
			}

			dout, err := m.destroyer.Handle(usecase.DestroyCircuitInput{CircuitID: circ.ID().String()})
			if err != nil {
				t.Fatalf("destroy: %v", err)
			}
			if !dout.Destroyed || dout.HopsNotified != hops {
				t.Errorf("destroy notified %d hops, want %d", dout.HopsNotified, hops)
			}
			waitFor(t, 5*time.Second, func() bool { return m.totalStates() == 0 },
				"relays still hold link state after destroy")
		})
	}
}

// A payload over the per-cell budget goes out in order as several
// fragments and comes back as one reassembled delivery.
func TestSendFragmentsLargePayload(t *testing.T) {
	m := startMixnet(t, 4)
	out, err := m.builder.Handle(context.Background(), usecase.BuildCircuitInput{Hops: 3})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	m.sessions.Put(out.Session)
	defer m.destroyer.Handle(usecase.DestroyCircuitInput{CircuitID: out.Circuit.ID().String()})

	budget := m.onion.MaxPlaintext(3) - 1
	payload := make([]byte, 3*budget+5)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sent, err := m.sender.Handle(ctx, usecase.SendDataInput{
		CircuitID: out.Circuit.ID().String(),
		Data:      payload,
		AwaitAck:  true,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent.Fragments != 4 {
		t.Errorf("fragments = %d, want 4", sent.Fragments)
	}
	if sent.BytesSent != len(payload) {
		t.Errorf("bytes sent = %d, want %d", sent.BytesSent, len(payload))
	}
	if sent.Acked != uint32(len(payload)) {
		t.Errorf("acked = %d, want %d", sent.Acked, len(payload))
	}

	select {
	case echo := <-out.Session.Payloads():
		if !bytes.Equal(echo, payload) {
			t.Errorf("echo differs: %d bytes back, want %d", len(echo), len(payload))
		}
	case <-time.After(10 * time.Second):
		t.Fatal("echo never arrived")
	}
}

// Several goroutines pushing payloads down one circuit at once must not
// trip the relays' strict sequence check: a duplicated forward number
// would read as a replay at the entry and kill a healthy circuit.
func TestConcurrentSendsKeepSequenceOrder(t *testing.T) {
	m := startMixnet(t, 4)
	out, err := m.builder.Handle(context.Background(), usecase.BuildCircuitInput{Hops: 3})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	m.sessions.Put(out.Session)
	defer m.destroyer.Handle(usecase.DestroyCircuitInput{CircuitID: out.Circuit.ID().String()})

	budget := m.onion.MaxPlaintext(3) - 1
	msgs := make([][]byte, 4)
	for i := range msgs {
		n := 24
		if i == 0 {
			// one multi-fragment payload among the senders
			n = 2*budget + 9
		}
		msgs[i] = bytes.Repeat([]byte{byte('a' + i)}, n)
	}

	start := make(chan struct{})
	errs := make(chan error, len(msgs))
	var wg sync.WaitGroup
	for _, msg := range msgs {
		wg.Add(1)
		go func(msg []byte) {
			defer wg.Done()
			<-start
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, err := m.sender.Handle(ctx, usecase.SendDataInput{
				CircuitID: out.Circuit.ID().String(),
				Data:      msg,
				AwaitAck:  true,
			})
			errs <- err
		}(msg)
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent send: %v", err)
		}
	}
	if err := out.Session.Err(); err != nil {
		t.Fatalf("session died under concurrent sends: %v", err)
	}

	got := make(map[byte]int)
	for range msgs {
		select {
		case echo := <-out.Session.Payloads():
			if len(echo) == 0 {
				t.Fatal("empty echo")
			}
			if !bytes.Equal(echo, bytes.Repeat(echo[:1], len(echo))) {
				t.Fatalf("echo of %d bytes mixes payloads", len(echo))
			}
			got[echo[0]]++
		case <-time.After(10 * time.Second):
			t.Fatal("echo never arrived")
		}
	}
	for _, msg := range msgs {
		if got[msg[0]] != 1 {
			t.Errorf("payload %q echoed %d times, want once", msg[:1], got[msg[0]])
		}
	}
}

// A successful build rewards every hop on the path, and a confirmed
// delivery rewards them again.
func TestRoundtripRewardsPath(t *testing.T) {
	m := startMixnet(t, 3)
	base := m.pol.Baseline

	out, err := m.builder.Handle(context.Background(), usecase.BuildCircuitInput{Hops: 3})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	m.sessions.Put(out.Session)
	defer m.destroyer.Handle(usecase.DestroyCircuitInput{CircuitID: out.Circuit.ID().String()})

	afterBuild := make(map[string]float64)
	for _, id := range out.Circuit.HopIDs() {
		s := m.score(id)
		if s <= base {
			t.Errorf("relay %s score %.2f after build, want above baseline %.2f", id, s, base)
		}
		afterBuild[id.String()] = s
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := m.sender.Handle(ctx, usecase.SendDataInput{
		CircuitID: out.Circuit.ID().String(),
		Data:      []byte("count me"),
		AwaitAck:  true,
	}); err != nil {
		t.Fatalf("send: %v", err)
	}
	for _, id := range out.Circuit.HopIDs() {
		if s := m.score(id); s <= afterBuild[id.String()] {
			t.Errorf("relay %s score %.2f after ack, want above %.2f", id, s, afterBuild[id.String()])
		}
	}
}
