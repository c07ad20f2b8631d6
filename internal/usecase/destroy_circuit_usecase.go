package usecase

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-mixway/internal/domain/repository"
	svc "ikedadada/go-mixway/internal/domain/service"
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// DestroyCircuitInput triggers a circuit teardown.
type DestroyCircuitInput struct {
	CircuitID string
	Reason    vo.DestroyReason // zero value reads as FINISHED
}

// DestroyCircuitOutput reports the teardown.
type DestroyCircuitOutput struct {
	Destroyed    bool `json:"destroyed"`
	HopsNotified int  `json:"hops_notified"`
}

// DestroyCircuitUseCase tears a circuit down: one Destroy cell to every
// established hop, farthest first, then the session and keys go away.
type DestroyCircuitUseCase interface {
	Handle(in DestroyCircuitInput) (DestroyCircuitOutput, error)
}

type destroyCircuitUseCaseImpl struct {
	sessions *SessionTable
	circuits repository.CircuitRepository
	tel      svc.TelemetrySink
	log      *logging.Logger
}

// NewDestroyCircuitUseCase returns a use case to abort circuits.
func NewDestroyCircuitUseCase(sessions *SessionTable, cr repository.CircuitRepository, tel svc.TelemetrySink, log *logging.Logger) DestroyCircuitUseCase {
	return &destroyCircuitUseCaseImpl{sessions: sessions, circuits: cr, tel: tel, log: log}
}

func (uc *destroyCircuitUseCaseImpl) Handle(in DestroyCircuitInput) (DestroyCircuitOutput, error) {
	cid, err := vo.CircuitIDFrom(in.CircuitID)
	if err != nil {
		return DestroyCircuitOutput{}, fmt.Errorf("parse circuit id: %w", err)
	}
	reason := in.Reason
	if reason == 0 {
		reason = vo.ReasonFinished
	}

	session, ok := uc.sessions.Remove(cid)
	if !ok {
		// a failed circuit may linger in the repository without a session
		if _, err := uc.circuits.Find(cid); err != nil {
			return DestroyCircuitOutput{}, fmt.Errorf("circuit %s: %w", in.CircuitID, repository.ErrNotFound)
		}
		if err := uc.circuits.Delete(cid); err != nil {
			return DestroyCircuitOutput{}, err
		}
		return DestroyCircuitOutput{Destroyed: true}, nil
	}

	uc.tel.ActiveCircuits(-1)
	circ := session.Circuit()
	if err := circ.TransitionTo(vo.StateDestroying); err != nil {
		uc.log.Warningf("circuit %v: %v", cid, err)
	}
	notified := teardownHops(session, reason, uc.log)
	session.Close()
	if err := circ.TransitionTo(vo.StateDestroyed); err != nil {
		uc.log.Warningf("circuit %v: %v", cid, err)
	}
	circ.WipeKeys()
	if err := uc.circuits.Delete(cid); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return DestroyCircuitOutput{}, err
	}
	uc.tel.CircuitDestroyed(reason.String())
	uc.log.Infof("circuit %v destroyed (%s), %d hops notified", cid, reason, notified)
	return DestroyCircuitOutput{Destroyed: true, HopsNotified: notified}, nil
}

// teardownHops sends one onion Destroy to each established hop, farthest
// first, so every relay sees its notice before its upstream goes away.
func teardownHops(session *CircuitSession, reason vo.DestroyReason, log *logging.Logger) int {
	circ := session.Circuit()
	notified := 0
	for depth := circ.EstablishedHops(); depth >= 1; depth-- {
		payload := vo.EncodeDestroyPayload(&vo.DestroyPayload{Reason: reason})
		if err := session.SendForward(vo.CmdDestroy, depth, payload); err != nil {
			// link is gone, nobody further can be notified
			log.Warningf("circuit %v: teardown hop %d: %v", circ.ID(), depth, err)
			return notified
		}
		notified++
	}
	return notified
}

// destroyReasonFor maps a failure to the teardown reason its Destroy
// cells carry.
func destroyReasonFor(err error) vo.DestroyReason {
	switch {
	case err == nil:
		return vo.ReasonFinished
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errExtendRefused):
		return vo.ReasonTimeout
	case errors.Is(err, vo.ErrCapacity):
		return vo.ReasonCapacity
	case errors.Is(err, context.Canceled):
		return vo.ReasonFinished
	default:
		return vo.ReasonProtocol
	}
}
