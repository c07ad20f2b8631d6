package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-mixway/internal/domain/aggregate"
	"ikedadada/go-mixway/internal/domain/entity"
	"ikedadada/go-mixway/internal/domain/repository"
	svc "ikedadada/go-mixway/internal/domain/service"
	vo "ikedadada/go-mixway/internal/domain/value_object"
	usvc "ikedadada/go-mixway/internal/usecase/service"
)

// maxPathLen caps the hop count a single cell can address.
const maxPathLen = 8

// errExtendRefused marks an empty Extended answer: the tail relay could
// not reach or finish with the requested next hop.
var errExtendRefused = errors.New("next hop unreachable")

// BuildCircuitInput selects the parameters of one build attempt.
type BuildCircuitInput struct {
	Hops    int // 0 means the configured default
	Exclude []vo.RelayID
}

// BuildCircuitOutput hands back the established circuit and its running
// session. The caller owns both from here on.
type BuildCircuitOutput struct {
	Circuit *entity.Circuit
	Session *CircuitSession
}

// BuildCircuitUseCase performs one telescoping circuit build: draw a
// path, dial the entry relay, then extend hop by hop until the full
// depth stands. Each hop failure is reported against the relay that
// caused it before the attempt fails.
type BuildCircuitUseCase interface {
	Handle(ctx context.Context, in BuildCircuitInput) (BuildCircuitOutput, error)
}

// BuildCircuitConfig carries the tunables for circuit construction.
type BuildCircuitConfig struct {
	Hops                  int
	MinReputation         float64
	RequireDistinctSubnet bool
	HopTimeout            time.Duration
}

type buildCircuitUseCaseImpl struct {
	relays    repository.RelayRepository
	circuits  repository.CircuitRepository
	lottery   svc.LotteryService
	handshake svc.HandshakeService
	onion     svc.OnionService
	cells     usvc.CellIOService
	dialer    usvc.CircuitDialer
	tel       svc.TelemetrySink
	log       *logging.Logger
	cfg       BuildCircuitConfig
}

// NewBuildCircuitUseCase returns a use case that builds circuits over the
// given transport.
func NewBuildCircuitUseCase(
	rr repository.RelayRepository,
	cr repository.CircuitRepository,
	lot svc.LotteryService,
	hs svc.HandshakeService,
	on svc.OnionService,
	cells usvc.CellIOService,
	d usvc.CircuitDialer,
	tel svc.TelemetrySink,
	log *logging.Logger,
	cfg BuildCircuitConfig,
) BuildCircuitUseCase {
	return &buildCircuitUseCaseImpl{
		relays:    rr,
		circuits:  cr,
		lottery:   lot,
		handshake: hs,
		onion:     on,
		cells:     cells,
		dialer:    d,
		tel:       tel,
		log:       log,
		cfg:       cfg,
	}
}

func (uc *buildCircuitUseCaseImpl) Handle(ctx context.Context, in BuildCircuitInput) (BuildCircuitOutput, error) {
	hops := in.Hops
	if hops == 0 {
		hops = uc.cfg.Hops
	}
	if hops < 1 || hops > maxPathLen {
		return BuildCircuitOutput{}, fmt.Errorf("path length %d out of range [1,%d]", hops, maxPathLen)
	}

	start := time.Now()
	now := vo.Now()
	dir, err := uc.relays.Snapshot(now)
	if err != nil {
		return BuildCircuitOutput{}, fmt.Errorf("directory snapshot: %w", err)
	}

	cons := svc.PathConstraints{
		Length:                hops,
		MinReputation:         uc.cfg.MinReputation,
		RequireDistinctSubnet: uc.cfg.RequireDistinctSubnet,
	}
	if len(in.Exclude) > 0 {
		cons.Exclude = make(map[vo.RelayID]struct{}, len(in.Exclude))
		for _, id := range in.Exclude {
			cons.Exclude[id] = struct{}{}
		}
	}
	path, err := uc.lottery.SelectPath(dir, cons)
	if err != nil {
		return BuildCircuitOutput{}, err
	}

	circ, err := entity.NewCircuit(vo.NewCircuitID(), path.Hops())
	if err != nil {
		return BuildCircuitOutput{}, err
	}
	if err := circ.TransitionTo(vo.StateBuilding); err != nil {
		return BuildCircuitOutput{}, err
	}
	uc.log.Infof("building circuit %v over %d hops", circ.ID(), path.Len())

	dctx, cancel := context.WithTimeout(ctx, uc.cfg.HopTimeout)
	conn, err := uc.dialer.Dial(dctx, path.Hop(0).Endpoint.String())
	cancel()
	if err != nil {
		uc.hopFault(path.Hop(0), err)
		return BuildCircuitOutput{}, uc.abort(circ, nil, fmt.Errorf("dial entry %s: %w", path.Hop(0).Endpoint, err))
	}

	session := NewCircuitSession(circ, conn, uc.onion, uc.cells, uc.tel, uc.log)
	if err := uc.createEntry(ctx, session, path); err != nil {
		uc.blame(path, session, 1, err)
		return BuildCircuitOutput{}, uc.abort(circ, session, err)
	}
	for depth := 2; depth <= path.Len(); depth++ {
		if err := uc.extendTo(ctx, session, path, depth); err != nil {
			uc.blame(path, session, depth, err)
			return BuildCircuitOutput{}, uc.abort(circ, session, err)
		}
	}

	if err := circ.TransitionTo(vo.StateEstablished); err != nil {
		return BuildCircuitOutput{}, uc.abort(circ, session, err)
	}
	if err := uc.circuits.Save(circ); err != nil {
		return BuildCircuitOutput{}, uc.abort(circ, session, fmt.Errorf("save circuit: %w", err))
	}
	for _, id := range circ.HopIDs() {
		uc.report(id, vo.EventBuildSuccess)
	}
	elapsed := time.Since(start)
	uc.tel.CircuitBuilt(path.Len(), elapsed)
	uc.log.Noticef("circuit %v established in %v", circ.ID(), elapsed)
	return BuildCircuitOutput{Circuit: circ, Session: session}, nil
}

// createEntry runs the Create/Created exchange with the entry relay and
// adopts the link id the responder assigned.
func (uc *buildCircuitUseCaseImpl) createEntry(ctx context.Context, session *CircuitSession, path *aggregate.Path) error {
	start := time.Now()
	hs, hello, err := uc.handshake.Begin(vo.SuiteX25519Ed25519ChaCha20)
	if err != nil {
		return hsErr(path, 1, "begin", err)
	}
	provisional, err := vo.NewLinkID()
	if err != nil {
		return err
	}
	cell := &vo.Cell{
		Link:    provisional,
		Version: vo.Version,
		Cmd:     vo.CmdCreate,
		Body:    vo.EncodeCreatePayload(hello),
	}
	if err := session.Send(cell); err != nil {
		return hsErr(path, 1, "send create", err)
	}

	hctx, cancel := context.WithTimeout(ctx, uc.cfg.HopTimeout)
	defer cancel()
	a, err := session.awaitCtrl(hctx, vo.CmdCreated)
	if err != nil {
		return hsErr(path, 1, "await created", err)
	}
	answer, err := vo.DecodeCreatedPayload(a.body)
	if err != nil {
		return hsErr(path, 1, "decode created", err)
	}
	keys, err := uc.handshake.Finish(hs, answer, path.Hop(0).Identity)
	if err != nil {
		return hsErr(path, 1, "finish", err)
	}

	circ := session.Circuit()
	circ.AttachLink(session.conn, a.link)
	circ.AddHop(path.Hop(0).ID, keys)
	uc.tel.HandshakeDone(time.Since(start))
	return nil
}

// extendTo asks the current tail to splice in the relay at 1-based depth.
func (uc *buildCircuitUseCaseImpl) extendTo(ctx context.Context, session *CircuitSession, path *aggregate.Path, depth int) error {
	start := time.Now()
	circ := session.Circuit()
	tail := depth - 1 // 1-based depth of the relay the Extend is addressed to

	hs, hello, err := uc.handshake.Begin(vo.SuiteX25519Ed25519ChaCha20)
	if err != nil {
		return hsErr(path, depth, "begin", err)
	}
	body, err := vo.EncodeExtendPayload(&vo.ExtendPayload{
		NextHop: path.Hop(depth - 1).Endpoint.String(),
		Create:  *hello,
	})
	if err != nil {
		return hsErr(path, depth, "encode extend", err)
	}

	if err := session.SendForward(vo.CmdExtend, tail, body); err != nil {
		return hsErr(path, depth, "send extend", err)
	}

	hctx, cancel := context.WithTimeout(ctx, uc.cfg.HopTimeout)
	defer cancel()
	a, err := session.awaitCtrl(hctx, vo.CmdExtended)
	if err != nil {
		return hsErr(path, depth, "await extended", err)
	}
	if a.origin != tail-1 {
		return hsErr(path, depth, fmt.Sprintf("extended answered by hop %d", a.origin+1), nil)
	}
	if len(a.body) == 0 {
		return hsErr(path, depth, "extend refused", errExtendRefused)
	}
	answer, err := vo.DecodeCreatedPayload(a.body)
	if err != nil {
		return hsErr(path, depth, "decode created", err)
	}
	keys, err := uc.handshake.Finish(hs, answer, path.Hop(depth-1).Identity)
	if err != nil {
		return hsErr(path, depth, "finish", err)
	}
	circ.AddHop(path.Hop(depth-1).ID, keys)
	uc.tel.HandshakeDone(time.Since(start))
	return nil
}

// abort fails the circuit: established hops get their Destroy cells,
// the session dies, keys are wiped. It returns the causing error for
// the caller to propagate.
func (uc *buildCircuitUseCaseImpl) abort(circ *entity.Circuit, session *CircuitSession, err error) error {
	if session != nil {
		teardownHops(session, destroyReasonFor(err), uc.log)
		session.Close()
	}
	if terr := circ.TransitionTo(vo.StateFailed); terr != nil {
		uc.log.Warningf("circuit %v: %v", circ.ID(), terr)
	}
	circ.WipeKeys()
	uc.tel.CircuitFailed("build")
	uc.log.Warningf("circuit %v build failed: %v", circ.ID(), err)
	return err
}

// blame attributes a failed build step. When the session pump already
// pinned the failure on a hop, that attribution wins over the step's
// target; a tampered answer is the tamperer's fault, not the target's.
// Caller-initiated cancellation carries no penalty.
func (uc *buildCircuitUseCaseImpl) blame(path *aggregate.Path, session *CircuitSession, hop int, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if session != nil && !session.Closed() {
		if h := session.FailedHop(); h >= 0 && h < path.Len() {
			hop = h + 1
			if serr := session.Err(); serr != nil {
				err = serr
			}
		}
	}
	if hop >= 1 && hop <= path.Len() {
		uc.hopFault(path.Hop(hop-1), err)
	}
}

// hopFault classifies a hop failure into a reputation event.
func (uc *buildCircuitUseCaseImpl) hopFault(hop entity.RelayInfo, err error) {
	kind := vo.EventHandshakeFailure
	switch {
	case errors.Is(err, vo.ErrIntegrity) || errors.Is(err, vo.ErrSequence):
		kind = vo.EventIntegrityViolation
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errExtendRefused):
		kind = vo.EventTimeout
	}
	uc.report(hop.ID, kind)
}

func (uc *buildCircuitUseCaseImpl) report(id vo.RelayID, kind vo.ReputationEventKind) {
	reportEvent(uc.relays, uc.tel, uc.log, id, kind)
}

// reportEvent applies one reputation event, best effort.
func reportEvent(rr repository.RelayRepository, tel svc.TelemetrySink, log *logging.Logger, id vo.RelayID, kind vo.ReputationEventKind) {
	ev, err := vo.NewReputationEvent(id, kind, vo.Now())
	if err != nil {
		return
	}
	if err := rr.Apply(ev); err != nil {
		log.Warningf("reputation %s for %v: %v", kind, id, err)
		return
	}
	tel.ReputationEvent(kind)
}

// hsErr builds a handshake failure pinned to a 1-based hop on the path.
func hsErr(path *aggregate.Path, hop int, reason string, err error) *vo.HandshakeError {
	return &vo.HandshakeError{Hop: hop, Relay: path.Hop(hop - 1).ID, Reason: reason, Err: err}
}

// forwardLayers assembles the per-hop forward sealing keys for a cell
// addressed to the 1-based depth.
func forwardLayers(circ *entity.Circuit, depth int) ([]svc.LayerKey, error) {
	seqs := circ.FwdSeqs(depth)
	layers := make([]svc.LayerKey, depth)
	for i := 0; i < depth; i++ {
		keys, err := circ.HopKeysAt(i)
		if err != nil {
			return nil, err
		}
		layers[i] = svc.LayerKey{AEAD: keys.FwdAEAD, MAC: keys.FwdMAC, Seq: seqs[i]}
	}
	return layers, nil
}
