package usecase

import (
	"context"
	"fmt"
	"net"
	"time"

	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-mixway/internal/domain/entity"
	"ikedadada/go-mixway/internal/domain/repository"
	svc "ikedadada/go-mixway/internal/domain/service"
	vo "ikedadada/go-mixway/internal/domain/value_object"
	usvc "ikedadada/go-mixway/internal/usecase/service"
)

// RelayConfig carries the relay-side tunables.
type RelayConfig struct {
	HopTimeout time.Duration // dial plus Created wait per extend
}

// RelayUseCase processes cells arriving on a relay's upstream
// connections. Create allocates a link and answers the handshake; onion
// cells are verified against the link's expected sequence, peeled one
// layer and either forwarded, extended, delivered or torn down. An error
// return means the connection itself is beyond use.
type RelayUseCase interface {
	Handle(up net.Conn, cell *vo.Cell) error
}

type relayUseCaseImpl struct {
	identity   *vo.Ed25519PrivKey
	states     repository.ConnStateRepository
	handshake  svc.HandshakeService
	onion      svc.OnionService
	cells      usvc.CellIOService
	dialer     usvc.CircuitDialer
	sink       usvc.ExitSink
	tel        svc.TelemetrySink
	log        *logging.Logger
	hopTimeout time.Duration
	bwdBudget  int
}

// NewRelayUseCase wires the relay cell processor.
func NewRelayUseCase(
	identity *vo.Ed25519PrivKey,
	states repository.ConnStateRepository,
	handshake svc.HandshakeService,
	onion svc.OnionService,
	cells usvc.CellIOService,
	dialer usvc.CircuitDialer,
	sink usvc.ExitSink,
	tel svc.TelemetrySink,
	log *logging.Logger,
	cfg RelayConfig,
) RelayUseCase {
	if cfg.HopTimeout <= 0 {
		cfg.HopTimeout = 5 * time.Second
	}
	return &relayUseCaseImpl{
		identity:   identity,
		states:     states,
		handshake:  handshake,
		onion:      onion,
		cells:      cells,
		dialer:     dialer,
		sink:       sink,
		tel:        tel,
		log:        log,
		hopTimeout: cfg.HopTimeout,
		// an exit cannot know its depth, so backward fragments fit the
		// deepest supported circuit
		bwdBudget: onion.MaxPlaintext(maxPathLen) - 1,
	}
}

func (uc *relayUseCaseImpl) Handle(up net.Conn, cell *vo.Cell) error {
	if cell.Version != vo.Version {
		uc.tel.CellDropped("version")
		return fmt.Errorf("unsupported cell version 0x%02x", cell.Version)
	}
	if cell.HasZeroTag() {
		return uc.handleLink(up, cell)
	}
	uc.handleOnion(up, cell)
	return nil
}

func (uc *relayUseCaseImpl) handleLink(up net.Conn, cell *vo.Cell) error {
	switch cell.Cmd {
	case vo.CmdCreate:
		return uc.create(up, cell)
	case vo.CmdPadding:
		if st, err := uc.states.Find(cell.Link); err == nil {
			st.Touch()
		}
		return nil
	default:
		uc.tel.CellDropped("link_unexpected")
		return nil
	}
}

// create answers one handshake and allocates the link id the client will
// address this hop by.
func (uc *relayUseCaseImpl) create(up net.Conn, cell *vo.Cell) error {
	start := time.Now()
	hello, err := vo.DecodeCreatePayload(cell.Body)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	keys, answer, err := uc.handshake.Respond(hello, uc.identity)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	st := entity.NewConnState(keys, up)
	link, err := uc.states.Alloc(st)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	st.SetUpLink(link)
	reply := &vo.Cell{Link: link, Version: vo.Version, Cmd: vo.CmdCreated, Body: vo.EncodeCreatedPayload(answer)}
	if err := uc.writeUp(st, reply); err != nil {
		uc.states.Free(link)
		return fmt.Errorf("create: %w", err)
	}
	uc.tel.HandshakeDone(time.Since(start))
	uc.log.Debugf("link %v created", link)
	return nil
}

func (uc *relayUseCaseImpl) handleOnion(up net.Conn, cell *vo.Cell) {
	if !cell.Cmd.IsOnion() {
		uc.tel.CellDropped("not_onion")
		return
	}
	st, err := uc.states.Find(cell.Link)
	if err != nil {
		uc.tel.CellDropped("stale_link")
		return
	}
	if st.Up() != up {
		uc.tel.CellDropped("foreign_link")
		return
	}
	want := st.ExpectFwd()
	if cell.Seq != want {
		uc.log.Warningf("link %v: seq %d, expected %d", cell.Link, cell.Seq, want)
		uc.tel.CellDropped("sequence")
		uc.teardownLink(st, vo.ReasonProtocol)
		return
	}
	keys := st.Keys()
	fl, err := uc.onion.PeelForward(svc.LayerKey{AEAD: keys.FwdAEAD, MAC: keys.FwdMAC, Seq: want}, cell.Cmd, cell.Body, cell.Tag)
	if err != nil {
		uc.log.Warningf("link %v: %v", cell.Link, err)
		uc.tel.CellDropped("integrity")
		uc.teardownLink(st, vo.ReasonProtocol)
		return
	}
	st.ConsumeFwd()
	st.Touch()
	if fl.Terminal {
		uc.terminal(st, cell.Cmd, fl.Payload)
		return
	}
	uc.forward(st, cell.Cmd, fl)
}

// forward passes a peeled cell one hop downstream under the tag the
// client precomputed for it.
func (uc *relayUseCaseImpl) forward(st *entity.ConnState, cmd vo.CellCommand, fl *svc.ForwardLayer) {
	if !st.HasDownstream() {
		uc.tel.CellDropped("no_downstream")
		uc.teardownLink(st, vo.ReasonProtocol)
		return
	}
	out := &vo.Cell{Link: st.DownLink(), Version: vo.Version, Cmd: cmd, Seq: st.NextFwdSend(), Body: fl.Next, Tag: fl.NextTag}
	if err := uc.cells.WriteCell(st.Down(), out); err != nil {
		uc.log.Warningf("link %v: forward: %v", st.UpLink(), err)
		uc.downstreamGone(st)
		return
	}
	uc.tel.CellRelayed(cmd)
}

func (uc *relayUseCaseImpl) terminal(st *entity.ConnState, cmd vo.CellCommand, payload []byte) {
	switch cmd {
	case vo.CmdExtend:
		uc.extend(st, payload)
	case vo.CmdData:
		uc.deliver(st, payload)
	case vo.CmdDestroy:
		uc.destroy(st, payload)
	default:
		uc.tel.CellDropped("terminal_unexpected")
	}
}

// extend grows the circuit by one hop: dial the requested relay, pass
// the embedded Create through and answer upstream with the next relay's
// Created, or with an empty refusal.
func (uc *relayUseCaseImpl) extend(st *entity.ConnState, payload []byte) {
	p, err := vo.DecodeExtendPayload(payload)
	if err != nil {
		uc.tel.CellDropped("extend_malformed")
		uc.teardownLink(st, vo.ReasonProtocol)
		return
	}
	if st.HasDownstream() {
		uc.tel.CellDropped("extend_twice")
		uc.teardownLink(st, vo.ReasonProtocol)
		return
	}
	answer, err := uc.dialNext(p)
	if err != nil {
		uc.log.Warningf("link %v: extend to %s: %v", st.UpLink(), p.NextHop, err)
		if oerr := uc.originBackward(st, vo.CmdExtended, nil); oerr != nil {
			uc.log.Debugf("link %v: refusal: %v", st.UpLink(), oerr)
		}
		return
	}
	st.SetDownstream(answer.conn, answer.link)
	go uc.pumpBackward(st)
	uc.tel.CellRelayed(vo.CmdExtend)
	if err := uc.originBackward(st, vo.CmdExtended, answer.body); err != nil {
		uc.log.Warningf("link %v: extended answer: %v", st.UpLink(), err)
	}
}

type extendAnswer struct {
	conn net.Conn
	link vo.LinkID
	body []byte
}

// dialNext opens the downstream link: dial, forward the embedded Create
// and wait for the next relay's Created answer carrying the assigned id.
func (uc *relayUseCaseImpl) dialNext(p *vo.ExtendPayload) (*extendAnswer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), uc.hopTimeout)
	defer cancel()
	conn, err := uc.dialer.Dial(ctx, p.NextHop)
	if err != nil {
		return nil, err
	}
	provisional, err := vo.NewLinkID()
	if err != nil {
		conn.Close()
		return nil, err
	}
	create := &vo.Cell{Link: provisional, Version: vo.Version, Cmd: vo.CmdCreate, Body: vo.EncodeCreatePayload(&p.Create)}
	if err := uc.cells.WriteCell(conn, create); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetReadDeadline(time.Now().Add(uc.hopTimeout))
	answer, err := uc.cells.ReadCell(conn)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if answer.Cmd != vo.CmdCreated || !answer.HasZeroTag() {
		conn.Close()
		return nil, fmt.Errorf("next hop answered %v", answer.Cmd)
	}
	return &extendAnswer{conn: conn, link: answer.Link, body: answer.Body}, nil
}

// deliver reassembles Data fragments at the exit and hands the payload
// to the sink, acking the byte count and carrying any response back.
func (uc *relayUseCaseImpl) deliver(st *entity.ConnState, payload []byte) {
	p, err := vo.DecodeDataPayload(payload)
	if err != nil {
		uc.tel.CellDropped("data_malformed")
		uc.teardownLink(st, vo.ReasonProtocol)
		return
	}
	if st.AppendPending(p.Data) > maxReassembly {
		uc.tel.CellDropped("reassembly_overflow")
		uc.teardownLink(st, vo.ReasonCapacity)
		return
	}
	if p.More {
		return
	}
	msg := st.TakePending()
	resp, err := uc.sink.Deliver(st.UpLink(), msg)
	if err != nil {
		uc.log.Warningf("link %v: sink: %v", st.UpLink(), err)
		uc.tel.CellDropped("sink")
		return
	}
	for off := 0; off < len(resp); {
		end := off + uc.bwdBudget
		if end > len(resp) {
			end = len(resp)
		}
		out := vo.EncodeDataPayload(&vo.DataPayload{More: end < len(resp), Data: resp[off:end]})
		if err := uc.originBackward(st, vo.CmdData, out); err != nil {
			uc.log.Warningf("link %v: response: %v", st.UpLink(), err)
			return
		}
		off = end
	}
	ack := vo.EncodeAckPayload(&vo.AckPayload{Received: uint32(len(msg))})
	if err := uc.originBackward(st, vo.CmdAck, ack); err != nil {
		uc.log.Warningf("link %v: ack: %v", st.UpLink(), err)
	}
	uc.tel.CellRelayed(vo.CmdData)
}

// destroy is the client-ordered teardown of this hop. The upstream conn
// stays open: the previous hop closes it when its own layer goes.
func (uc *relayUseCaseImpl) destroy(st *entity.ConnState, payload []byte) {
	p, err := vo.DecodeDestroyPayload(payload)
	if err != nil {
		p = &vo.DestroyPayload{Reason: vo.ReasonProtocol}
	}
	uc.log.Infof("link %v destroyed: %s", st.UpLink(), p.Reason)
	if _, err := uc.states.Free(st.UpLink()); err == nil {
		st.CloseDown()
	}
	uc.tel.CellRelayed(vo.CmdDestroy)
}

// pumpBackward owns all reads on the downstream conn, adding this hop's
// backward layer to every cell on its way up.
func (uc *relayUseCaseImpl) pumpBackward(st *entity.ConnState) {
	down := st.Down()
	for {
		cell, err := uc.cells.ReadCell(down)
		if err != nil {
			uc.downstreamGone(st)
			return
		}
		if cell.HasZeroTag() {
			switch cell.Cmd {
			case vo.CmdPadding:
				st.Touch()
			case vo.CmdDestroy:
				uc.downstreamGone(st)
				return
			default:
				uc.tel.CellDropped("link_unexpected")
			}
			continue
		}
		if !cell.Cmd.IsOnion() {
			uc.tel.CellDropped("not_onion")
			continue
		}
		if err := uc.wrapUp(st, cell); err != nil {
			uc.log.Warningf("link %v: backward: %v", st.UpLink(), err)
			if _, ferr := uc.states.Free(st.UpLink()); ferr == nil {
				st.CloseDown()
			}
			return
		}
		uc.tel.CellRelayed(cell.Cmd)
	}
}

// wrapUp layers one backward cell and restamps its header for the
// upstream link. The sequence draw and the write sit under one lock so
// concurrent senders cannot reorder stamped cells.
func (uc *relayUseCaseImpl) wrapUp(st *entity.ConnState, cell *vo.Cell) error {
	st.LockUp()
	defer st.UnlockUp()
	seq := st.NextBwdSend()
	keys := st.Keys()
	body, tag, err := uc.onion.WrapBackward(svc.LayerKey{AEAD: keys.BwdAEAD, MAC: keys.BwdMAC, Seq: seq}, cell.Cmd, cell.Tag, cell.Body)
	if err != nil {
		return err
	}
	out := &vo.Cell{Link: st.UpLink(), Version: vo.Version, Cmd: cell.Cmd, Seq: seq, Body: body, Tag: tag}
	return uc.cells.WriteCell(st.Up(), out)
}

// originBackward seals and sends a backward cell from this hop.
func (uc *relayUseCaseImpl) originBackward(st *entity.ConnState, cmd vo.CellCommand, payload []byte) error {
	st.LockUp()
	defer st.UnlockUp()
	seq := st.NextBwdSend()
	keys := st.Keys()
	body, tag, err := uc.onion.OriginBackward(svc.LayerKey{AEAD: keys.BwdAEAD, MAC: keys.BwdMAC, Seq: seq}, cmd, payload)
	if err != nil {
		return fmt.Errorf("origin %v: %w", cmd, err)
	}
	cell := &vo.Cell{Link: st.UpLink(), Version: vo.Version, Cmd: cmd, Seq: seq, Body: body, Tag: tag}
	return uc.cells.WriteCell(st.Up(), cell)
}

func (uc *relayUseCaseImpl) writeUp(st *entity.ConnState, cell *vo.Cell) error {
	st.LockUp()
	defer st.UnlockUp()
	return uc.cells.WriteCell(st.Up(), cell)
}

// teardownLink destroys one link after a protocol violation: claim it,
// tell the upstream peer and drop the downstream side.
func (uc *relayUseCaseImpl) teardownLink(st *entity.ConnState, reason vo.DestroyReason) {
	if _, err := uc.states.Free(st.UpLink()); err != nil {
		return
	}
	cell := &vo.Cell{Link: st.UpLink(), Version: vo.Version, Cmd: vo.CmdDestroy, Body: vo.EncodeDestroyPayload(&vo.DestroyPayload{Reason: reason})}
	if err := uc.writeUp(st, cell); err != nil {
		uc.log.Debugf("link %v: destroy notify: %v", st.UpLink(), err)
	}
	st.CloseDown()
}

// downstreamGone reacts to the next hop dying: if the link is still
// live, tell the client with a backward Destroy from this hop.
func (uc *relayUseCaseImpl) downstreamGone(st *entity.ConnState) {
	if _, err := uc.states.Free(st.UpLink()); err != nil {
		return
	}
	destroy := vo.EncodeDestroyPayload(&vo.DestroyPayload{Reason: vo.ReasonTimeout})
	if err := uc.originBackward(st, vo.CmdDestroy, destroy); err != nil {
		uc.log.Debugf("link %v: destroy notify: %v", st.UpLink(), err)
	}
	st.CloseDown()
}
