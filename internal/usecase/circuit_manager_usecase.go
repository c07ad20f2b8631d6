package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-mixway/internal/domain/entity"
	"ikedadada/go-mixway/internal/domain/repository"
	svc "ikedadada/go-mixway/internal/domain/service"
	vo "ikedadada/go-mixway/internal/domain/value_object"
	"ikedadada/go-mixway/internal/worker"
)

// CreateCircuitInput selects the parameters for a managed circuit.
type CreateCircuitInput struct {
	Hops int // 0 means the configured default
}

// CircuitInfo is the management view of one circuit.
type CircuitInfo struct {
	ID        string   `json:"circuit_id"`
	State     string   `json:"state"`
	Hops      []string `json:"relay_ids"`
	CreatedAt string   `json:"created_at"`
	RotateAt  string   `json:"rotate_at,omitempty"`
}

// CircuitManagerUseCase is the application boundary for circuits: it
// builds them with retry and backoff, rotates them before their deadline,
// reaps dead sessions, and exposes the data plane.
type CircuitManagerUseCase interface {
	// Create builds a circuit, retrying failed attempts with
	// exponential backoff and excluding relays that already failed.
	// When every attempt fails it returns a BuildError and nothing is
	// left running: no unprotected fallback exists.
	Create(ctx context.Context, in CreateCircuitInput) (CircuitInfo, error)

	// List reports every known circuit.
	List() ([]CircuitInfo, error)

	// Inspect reports one circuit.
	Inspect(id string) (CircuitInfo, error)

	// Destroy tears a circuit down.
	Destroy(id string, reason vo.DestroyReason) (DestroyCircuitOutput, error)

	// Send forwards application data on a circuit.
	Send(ctx context.Context, in SendDataInput) (SendDataOutput, error)

	// Recv returns the circuit's stream of reassembled backward
	// payloads. The channel closes when the circuit dies.
	Recv(id string) (<-chan []byte, error)

	// Shutdown destroys every circuit and stops the background workers.
	Shutdown()
}

// ManagerConfig carries the lifecycle tunables.
type ManagerConfig struct {
	BuildTimeout     time.Duration
	MaxBuildAttempts int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	RotationInterval time.Duration
	RotationGrace    time.Duration
	TickInterval     time.Duration // defaults to one second
}

type circuitManagerUseCaseImpl struct {
	worker.Worker

	builder   BuildCircuitUseCase
	sender    SendDataUseCase
	destroyer DestroyCircuitUseCase
	circuits  repository.CircuitRepository
	relays    repository.RelayRepository
	sessions  *SessionTable
	tel       svc.TelemetrySink
	log       *logging.Logger
	cfg       ManagerConfig
}

// NewCircuitManagerUseCase wires the lifecycle manager and starts its
// watchdog.
func NewCircuitManagerUseCase(
	builder BuildCircuitUseCase,
	sender SendDataUseCase,
	destroyer DestroyCircuitUseCase,
	cr repository.CircuitRepository,
	rr repository.RelayRepository,
	sessions *SessionTable,
	tel svc.TelemetrySink,
	log *logging.Logger,
	cfg ManagerConfig,
) CircuitManagerUseCase {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	m := &circuitManagerUseCaseImpl{
		builder:   builder,
		sender:    sender,
		destroyer: destroyer,
		circuits:  cr,
		relays:    rr,
		sessions:  sessions,
		tel:       tel,
		log:       log,
		cfg:       cfg,
	}
	m.Go(m.watch)
	return m
}

func (m *circuitManagerUseCaseImpl) Create(ctx context.Context, in CreateCircuitInput) (CircuitInfo, error) {
	var exclude []vo.RelayID
	var last error
	backoff := m.cfg.BackoffBase
	for attempt := 1; attempt <= m.cfg.MaxBuildAttempts; attempt++ {
		bctx, cancel := context.WithTimeout(ctx, m.cfg.BuildTimeout)
		out, err := m.builder.Handle(bctx, BuildCircuitInput{Hops: in.Hops, Exclude: exclude})
		cancel()
		if err == nil {
			out.Circuit.SetRotateAt(vo.Now().Add(m.cfg.RotationInterval))
			m.sessions.Put(out.Session)
			m.tel.ActiveCircuits(1)
			return infoFor(out.Circuit), nil
		}
		last = err
		m.log.Warningf("build attempt %d/%d: %v", attempt, m.cfg.MaxBuildAttempts, err)

		var hf *vo.HandshakeError
		var zero vo.RelayID
		if errors.As(err, &hf) && hf.Relay != zero {
			exclude = append(exclude, hf.Relay)
		}
		if ctx.Err() != nil || attempt == m.cfg.MaxBuildAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return CircuitInfo{}, &vo.BuildError{Attempts: attempt, Last: last}
		case <-m.HaltCh():
			return CircuitInfo{}, &vo.BuildError{Attempts: attempt, Last: last}
		}
		backoff *= 2
		if backoff > m.cfg.BackoffCap {
			backoff = m.cfg.BackoffCap
		}
	}
	return CircuitInfo{}, &vo.BuildError{Attempts: m.cfg.MaxBuildAttempts, Last: last}
}

func (m *circuitManagerUseCaseImpl) List() ([]CircuitInfo, error) {
	circs, err := m.circuits.ListActive()
	if err != nil {
		return nil, err
	}
	out := make([]CircuitInfo, 0, len(circs))
	for _, c := range circs {
		out = append(out, infoFor(c))
	}
	return out, nil
}

func (m *circuitManagerUseCaseImpl) Inspect(id string) (CircuitInfo, error) {
	cid, err := vo.CircuitIDFrom(id)
	if err != nil {
		return CircuitInfo{}, fmt.Errorf("parse circuit id: %w", err)
	}
	circ, err := m.circuits.Find(cid)
	if err != nil {
		return CircuitInfo{}, err
	}
	return infoFor(circ), nil
}

func (m *circuitManagerUseCaseImpl) Destroy(id string, reason vo.DestroyReason) (DestroyCircuitOutput, error) {
	return m.destroyer.Handle(DestroyCircuitInput{CircuitID: id, Reason: reason})
}

func (m *circuitManagerUseCaseImpl) Send(ctx context.Context, in SendDataInput) (SendDataOutput, error) {
	return m.sender.Handle(ctx, in)
}

func (m *circuitManagerUseCaseImpl) Recv(id string) (<-chan []byte, error) {
	cid, err := vo.CircuitIDFrom(id)
	if err != nil {
		return nil, fmt.Errorf("parse circuit id: %w", err)
	}
	s, ok := m.sessions.Get(cid)
	if !ok {
		return nil, fmt.Errorf("circuit %s: %w", id, repository.ErrNotFound)
	}
	return s.Payloads(), nil
}

func (m *circuitManagerUseCaseImpl) Shutdown() {
	for _, s := range m.sessions.All() {
		id := s.Circuit().ID().String()
		if _, err := m.destroyer.Handle(DestroyCircuitInput{CircuitID: id}); err != nil {
			m.log.Warningf("shutdown circuit %s: %v", id, err)
		}
	}
	m.Halt()
}

// watch drives the rotation deadlines and reaps sessions that died
// underneath their circuits.
func (m *circuitManagerUseCaseImpl) watch() {
	t := time.NewTicker(m.cfg.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-m.HaltCh():
			return
		case <-t.C:
			m.sweep()
		}
	}
}

func (m *circuitManagerUseCaseImpl) sweep() {
	now := vo.Now()
	for _, s := range m.sessions.All() {
		circ := s.Circuit()
		switch {
		case s.Err() != nil:
			if !s.Closed() {
				m.failCircuit(s)
			}
		case circ.State() == vo.StateEstablished && !circ.RotateAt().IsZero() &&
			now.After(circ.RotateAt().Add(-m.cfg.RotationGrace)):
			m.rotate(s)
		}
	}
}

// failCircuit handles a session that died passively: attribute the
// fault, mark the circuit Failed and wipe it.
func (m *circuitManagerUseCaseImpl) failCircuit(s *CircuitSession) {
	circ := s.Circuit()
	if _, ok := m.sessions.Remove(circ.ID()); !ok {
		return
	}
	m.tel.ActiveCircuits(-1)
	err := s.Err()
	if h := s.FailedHop(); h >= 0 && h < circ.PathLen() {
		if info, perr := circ.PathAt(h); perr == nil {
			reportEvent(m.relays, m.tel, m.log, info.ID, eventKindFor(err))
		}
	}
	if terr := circ.TransitionTo(vo.StateFailed); terr != nil {
		m.log.Warningf("circuit %v: %v", circ.ID(), terr)
	}
	circ.WipeKeys()
	s.Halt()
	m.tel.CircuitFailed("session")
	m.log.Warningf("circuit %v failed: %v", circ.ID(), err)
}

// rotate starts a background replacement build for a circuit nearing its
// rotation deadline. The old circuit keeps carrying traffic until the
// replacement stands.
func (m *circuitManagerUseCaseImpl) rotate(old *CircuitSession) {
	circ := old.Circuit()
	if err := circ.TransitionTo(vo.StateRotating); err != nil {
		m.log.Warningf("circuit %v: %v", circ.ID(), err)
		return
	}
	m.log.Infof("rotating circuit %v", circ.ID())
	m.Go(func() { m.rebuild(old) })
}

func (m *circuitManagerUseCaseImpl) rebuild(old *CircuitSession) {
	circ := old.Circuit()
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.BuildTimeout)
	defer cancel()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-m.HaltCh():
			cancel()
		case <-done:
		}
	}()

	out, err := m.builder.Handle(ctx, BuildCircuitInput{Hops: circ.PathLen()})
	if err != nil {
		m.log.Warningf("rotation rebuild for %v failed: %v", circ.ID(), err)
		// old path stays in service, try again next interval
		if terr := circ.TransitionTo(vo.StateEstablished); terr != nil {
			m.log.Warningf("circuit %v: %v", circ.ID(), terr)
			return
		}
		circ.SetRotateAt(vo.Now().Add(m.cfg.RotationInterval))
		return
	}
	out.Circuit.SetRotateAt(vo.Now().Add(m.cfg.RotationInterval))
	m.sessions.Put(out.Session)
	m.tel.ActiveCircuits(1)
	m.log.Noticef("circuit %v rotated into %v", circ.ID(), out.Circuit.ID())
	if _, err := m.destroyer.Handle(DestroyCircuitInput{CircuitID: circ.ID().String()}); err != nil {
		m.log.Warningf("rotation teardown for %v: %v", circ.ID(), err)
	}
}

// eventKindFor classifies a passive session failure.
func eventKindFor(err error) vo.ReputationEventKind {
	if errors.Is(err, vo.ErrIntegrity) || errors.Is(err, vo.ErrSequence) {
		return vo.EventIntegrityViolation
	}
	return vo.EventTimeout
}

func infoFor(c *entity.Circuit) CircuitInfo {
	info := CircuitInfo{
		ID:        c.ID().String(),
		State:     c.State().String(),
		CreatedAt: c.CreatedAt().String(),
	}
	for _, id := range c.HopIDs() {
		info.Hops = append(info.Hops, id.String())
	}
	if ra := c.RotateAt(); !ra.IsZero() {
		info.RotateAt = ra.String()
	}
	return info
}
