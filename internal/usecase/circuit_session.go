package usecase

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-mixway/internal/domain/entity"
	svc "ikedadada/go-mixway/internal/domain/service"
	vo "ikedadada/go-mixway/internal/domain/value_object"
	usvc "ikedadada/go-mixway/internal/usecase/service"
	"ikedadada/go-mixway/internal/worker"
)

// maxReassembly bounds the backward fragment buffer per circuit.
const maxReassembly = 1 << 20

var errSessionClosed = errors.New("circuit session closed")

// ctrlAnswer is one control-plane answer handed to a waiting builder.
type ctrlAnswer struct {
	cmd    vo.CellCommand
	link   vo.LinkID // responder-assigned id on a Created answer
	origin int       // 0-based hop an onion answer came from
	body   []byte
}

// CircuitSession owns the client end of one circuit link: the single
// reader pump, the write lock, and the routing of backward cells to
// whoever waits on them. Exactly one session exists per live circuit;
// it dies with the connection and never reconnects.
type CircuitSession struct {
	worker.Worker

	circ  *entity.Circuit
	conn  net.Conn
	onion svc.OnionService
	cells usvc.CellIOService
	tel   svc.TelemetrySink
	log   *logging.Logger

	// wmu serializes every link write and, through SendForward, the
	// whole draw-seal-write-commit span of a forward cell. msgMu keeps
	// the fragments of concurrent data payloads from interleaving.
	wmu   sync.Mutex
	msgMu sync.Mutex

	ctrl chan ctrlAnswer
	acks chan *vo.AckPayload
	rx   chan []byte

	reassembly []byte

	failOnce sync.Once
	failHop  int // 0-based hop blamed for the failure, -1 when unattributed
	failErr  error
	done     chan struct{}
}

// NewCircuitSession wraps an established relay connection and starts the
// reader pump.
func NewCircuitSession(circ *entity.Circuit, conn net.Conn, onion svc.OnionService, cells usvc.CellIOService, tel svc.TelemetrySink, log *logging.Logger) *CircuitSession {
	s := &CircuitSession{
		circ:    circ,
		conn:    conn,
		onion:   onion,
		cells:   cells,
		tel:     tel,
		log:     log,
		ctrl:    make(chan ctrlAnswer, 1),
		acks:    make(chan *vo.AckPayload, 8),
		rx:      make(chan []byte, 8),
		failHop: -1,
		done:    make(chan struct{}),
	}
	s.Go(s.readLoop)
	return s
}

// Circuit returns the circuit this session serves.
func (s *CircuitSession) Circuit() *entity.Circuit { return s.circ }

// Send writes one cell to the relay link. Safe for concurrent use.
func (s *CircuitSession) Send(c *vo.Cell) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.cells.WriteCell(s.conn, c)
}

// SendForward seals a payload for the 1-based hop depth and writes the
// cell. The sequence draw, the seal, the write and the commit all sit
// under the send lock: concurrent senders on one circuit can never
// stamp the same forward number, which the relays would read as a
// replay. Safe for concurrent use.
func (s *CircuitSession) SendForward(cmd vo.CellCommand, depth int, payload []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	layers, err := forwardLayers(s.circ, depth)
	if err != nil {
		return err
	}
	sealed, tag, err := s.onion.SealForward(cmd, layers, payload)
	if err != nil {
		return fmt.Errorf("seal %v: %w", cmd, err)
	}
	cell := &vo.Cell{
		Link:    s.circ.Link(),
		Version: vo.Version,
		Cmd:     cmd,
		Seq:     layers[0].Seq,
		Body:    sealed,
		Tag:     tag,
	}
	if err := s.cells.WriteCell(s.conn, cell); err != nil {
		return err
	}
	s.circ.CommitFwd(depth)
	return nil
}

// Payloads delivers reassembled backward data payloads.
func (s *CircuitSession) Payloads() <-chan []byte { return s.rx }

// Acks delivers end-to-end delivery confirmations.
func (s *CircuitSession) Acks() <-chan *vo.AckPayload { return s.acks }

// Done is closed once the session has failed or been closed.
func (s *CircuitSession) Done() <-chan struct{} { return s.done }

// Err reports why the session ended, nil while it is still running.
func (s *CircuitSession) Err() error {
	select {
	case <-s.done:
		return s.failErr
	default:
		return nil
	}
}

// FailedHop names the 0-based hop blamed for the session's end, -1 when
// no hop is at fault.
func (s *CircuitSession) FailedHop() int {
	select {
	case <-s.done:
		return s.failHop
	default:
		return -1
	}
}

// Close tears the session down and waits for the pump to exit.
func (s *CircuitSession) Close() {
	s.fail(-1, errSessionClosed)
	s.Halt()
}

// Closed reports whether the session ended by deliberate Close rather
// than failure.
func (s *CircuitSession) Closed() bool {
	return errors.Is(s.Err(), errSessionClosed)
}

func (s *CircuitSession) fail(hop int, err error) {
	s.failOnce.Do(func() {
		s.failHop = hop
		s.failErr = err
		s.conn.Close()
		close(s.done)
	})
}

// awaitCtrl blocks until the pump delivers the wanted control answer.
func (s *CircuitSession) awaitCtrl(ctx context.Context, want vo.CellCommand) (ctrlAnswer, error) {
	select {
	case a := <-s.ctrl:
		if a.cmd != want {
			return ctrlAnswer{}, fmt.Errorf("expected %s answer, got %s", want, a.cmd)
		}
		return a, nil
	case <-s.done:
		return ctrlAnswer{}, s.failErr
	case <-ctx.Done():
		return ctrlAnswer{}, ctx.Err()
	}
}

// readLoop is the only reader of the link and the only sender on the rx
// and ack channels; closing them on exit tells consumers the stream is
// over.
func (s *CircuitSession) readLoop() {
	defer close(s.rx)
	defer close(s.acks)
	for {
		cell, err := s.cells.ReadCell(s.conn)
		if err != nil {
			s.fail(-1, err)
			return
		}
		if cell.HasZeroTag() {
			if !s.handleLinkCell(cell) {
				return
			}
			continue
		}
		if !s.handleBackward(cell) {
			return
		}
	}
}

// handleLinkCell processes cells outside the layered channel. It returns
// false when the pump must stop.
func (s *CircuitSession) handleLinkCell(cell *vo.Cell) bool {
	switch cell.Cmd {
	case vo.CmdCreated:
		s.deliverCtrl(ctrlAnswer{cmd: cell.Cmd, link: cell.Link, origin: -1, body: cell.Body})
		return true
	case vo.CmdPadding:
		return true
	case vo.CmdDestroy:
		p, _ := vo.DecodeDestroyPayload(cell.Body)
		s.fail(0, fmt.Errorf("link torn down by entry relay: %s", p.Reason))
		return false
	default:
		s.tel.CellDropped("link_unexpected")
		s.log.Warningf("circuit %v: dropping link-level %s", s.circ.ID(), cell.Cmd)
		return true
	}
}

// handleBackward authenticates, orders and unwinds one backward onion
// cell. It returns false when the pump must stop.
func (s *CircuitSession) handleBackward(cell *vo.Cell) bool {
	if !cell.Cmd.IsOnion() {
		s.tel.CellDropped("not_onion")
		return true
	}
	n := s.circ.EstablishedHops()
	if n == 0 {
		s.tel.CellDropped("no_hops")
		return true
	}
	if expect := s.circ.ExpectedBwdSeq(); cell.Seq != expect {
		s.fail(0, &vo.SequenceError{Expected: expect, Got: cell.Seq})
		return false
	}

	seqs := s.circ.BwdSeqs(n)
	layers := make([]svc.LayerKey, n)
	for i := 0; i < n; i++ {
		keys, err := s.circ.HopKeysAt(i)
		if err != nil {
			s.fail(-1, err)
			return false
		}
		layers[i] = svc.LayerKey{AEAD: keys.BwdAEAD, MAC: keys.BwdMAC, Seq: seqs[i]}
	}
	origin, payload, err := s.onion.PeelBackward(layers, cell.Cmd, cell.Body, cell.Tag)
	if err != nil {
		s.fail(origin, err)
		return false
	}
	s.circ.CommitBwd(origin + 1)

	switch cell.Cmd {
	case vo.CmdExtended:
		s.deliverCtrl(ctrlAnswer{cmd: cell.Cmd, origin: origin, body: payload})
		return true
	case vo.CmdData:
		return s.deliverData(origin, payload)
	case vo.CmdAck:
		ack, err := vo.DecodeAckPayload(payload)
		if err != nil {
			s.tel.CellDropped("bad_ack")
			s.log.Warningf("circuit %v: %v", s.circ.ID(), err)
			return true
		}
		select {
		case s.acks <- ack:
		case <-s.HaltCh():
			return false
		}
		return true
	case vo.CmdDestroy:
		p, _ := vo.DecodeDestroyPayload(payload)
		s.fail(origin, fmt.Errorf("circuit destroyed by hop %d: %s", origin+1, p.Reason))
		return false
	default:
		s.tel.CellDropped("backward_unexpected")
		s.log.Warningf("circuit %v: dropping backward %s", s.circ.ID(), cell.Cmd)
		return true
	}
}

func (s *CircuitSession) deliverData(origin int, payload []byte) bool {
	dp, err := vo.DecodeDataPayload(payload)
	if err != nil {
		s.tel.CellDropped("bad_data")
		s.log.Warningf("circuit %v: %v", s.circ.ID(), err)
		return true
	}
	if len(s.reassembly)+len(dp.Data) > maxReassembly {
		s.fail(origin, fmt.Errorf("hop %d overflowed the reassembly buffer", origin+1))
		return false
	}
	s.reassembly = append(s.reassembly, dp.Data...)
	if dp.More {
		return true
	}
	out := s.reassembly
	s.reassembly = nil
	select {
	case s.rx <- out:
		return true
	case <-s.HaltCh():
		return false
	}
}

// deliverCtrl hands an answer to the single waiting builder. The build
// protocol allows one outstanding exchange, so an unclaimed answer means
// the peer spoke out of turn.
func (s *CircuitSession) deliverCtrl(a ctrlAnswer) {
	select {
	case s.ctrl <- a:
	default:
		s.tel.CellDropped("ctrl_unclaimed")
		s.log.Warningf("circuit %v: unclaimed %s answer", s.circ.ID(), a.cmd)
	}
}
