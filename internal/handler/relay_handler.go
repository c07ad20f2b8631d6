package handler

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-mixway/internal/domain/repository"
	"ikedadada/go-mixway/internal/usecase"
	usvc "ikedadada/go-mixway/internal/usecase/service"
	"ikedadada/go-mixway/internal/worker"
)

// RelayHandlerConfig tunes the listening side of a relay.
type RelayHandlerConfig struct {
	// IdleTTL reaps links that carried no cell for this long. Zero
	// disables the janitor.
	IdleTTL time.Duration

	// SweepTick is the janitor period, default 30s.
	SweepTick time.Duration
}

// RelayHandler owns a relay's upstream side: it accepts incoming links,
// reads cells off them and dispatches into the relay usecase. One serve
// goroutine runs per accepted conn. When a conn dies, every circuit
// riding it is freed and its downstream legs closed, which propagates
// the teardown along the path.
type RelayHandler struct {
	worker.Worker

	relay  usecase.RelayUseCase
	cells  usvc.CellIOService
	states repository.ConnStateRepository
	log    *logging.Logger
	cfg    RelayHandlerConfig

	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
}

func NewRelayHandler(relay usecase.RelayUseCase, cells usvc.CellIOService, states repository.ConnStateRepository, log *logging.Logger, cfg RelayHandlerConfig) *RelayHandler {
	if cfg.SweepTick <= 0 {
		cfg.SweepTick = 30 * time.Second
	}
	h := &RelayHandler{
		relay:  relay,
		cells:  cells,
		states: states,
		log:    log,
		cfg:    cfg,
		conns:  make(map[net.Conn]struct{}),
	}
	if cfg.IdleTTL > 0 {
		h.Go(h.janitor)
	}
	return h
}

// Serve accepts links on ln until the listener closes or Shutdown runs.
func (h *RelayHandler) Serve(ln net.Listener) {
	h.mu.Lock()
	h.ln = ln
	h.mu.Unlock()
	h.Go(func() { h.accept(ln) })
}

// ServeConn runs the read loop for one already-established link. It
// returns when the conn dies. Used by in-process transports.
func (h *RelayHandler) ServeConn(conn net.Conn) {
	h.serve(conn)
}

// Shutdown closes the listener and every live link, then waits for the
// serve goroutines to drain.
func (h *RelayHandler) Shutdown() {
	h.mu.Lock()
	if h.ln != nil {
		h.ln.Close()
	}
	for c := range h.conns {
		c.Close()
	}
	h.mu.Unlock()
	h.Halt()
}

func (h *RelayHandler) accept(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-h.HaltCh():
			default:
				if !errors.Is(err, net.ErrClosed) {
					h.log.Warningf("accept: %v", err)
				}
			}
			return
		}
		h.Go(func() { h.serve(conn) })
	}
}

func (h *RelayHandler) serve(conn net.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
	defer h.hangup(conn)

	for {
		cell, err := h.cells.ReadCell(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				h.log.Debugf("link read: %v", err)
			}
			return
		}
		if err := h.relay.Handle(conn, cell); err != nil {
			h.log.Warningf("link dropped: %v", err)
			return
		}
	}
}

// hangup frees every circuit riding the conn. Closing their downstream
// legs wakes the next hop, which tears down the same way.
func (h *RelayHandler) hangup(conn net.Conn) {
	for _, st := range h.states.FreeConn(conn) {
		st.CloseDown()
	}
	conn.Close()
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

func (h *RelayHandler) janitor() {
	t := time.NewTicker(h.cfg.SweepTick)
	defer t.Stop()
	for {
		select {
		case <-h.HaltCh():
			return
		case <-t.C:
			victims := h.states.SweepIdle(h.cfg.IdleTTL)
			for _, st := range victims {
				st.Close()
			}
			if len(victims) > 0 {
				h.log.Infof("reaped %d idle links", len(victims))
			}
		}
	}
}
