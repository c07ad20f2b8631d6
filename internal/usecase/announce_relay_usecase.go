package usecase

import (
	"context"
	"fmt"
	"sync"

	"gopkg.in/op/go-logging.v1"

	svc "ikedadada/go-mixway/internal/domain/service"
	vo "ikedadada/go-mixway/internal/domain/value_object"
	usvc "ikedadada/go-mixway/internal/usecase/service"
)

// AnnounceRelayOutput reports the registration state after one attempt.
type AnnounceRelayOutput struct {
	Epoch      uint64 `json:"epoch"`
	Registered bool   `json:"registered"`
}

// AnnounceRelayUseCase keeps a relay present in the directory: each call
// fetches the current epoch seed, mints a fresh lottery ticket and posts
// the signed descriptor. A repeat call inside an already announced epoch
// does nothing.
type AnnounceRelayUseCase interface {
	Handle(ctx context.Context) (AnnounceRelayOutput, error)
}

type announceRelayUseCaseImpl struct {
	id        vo.RelayID
	endpoint  vo.Endpoint
	identity  *vo.Ed25519PrivKey
	vrfPriv   vo.VRFPrivateKey
	vrfPub    vo.VRFPublicKey
	capacity  uint32
	feed      usvc.DirectoryFeedService
	lottery   svc.LotteryService
	registrar usvc.DirectoryRegistrar
	log       *logging.Logger

	mu        sync.Mutex
	announced bool
	lastEpoch uint64
}

// NewAnnounceRelayUseCase wires the per-epoch registration loop body.
func NewAnnounceRelayUseCase(
	id vo.RelayID,
	endpoint vo.Endpoint,
	identity *vo.Ed25519PrivKey,
	vrfPriv vo.VRFPrivateKey,
	vrfPub vo.VRFPublicKey,
	capacity uint32,
	feed usvc.DirectoryFeedService,
	lottery svc.LotteryService,
	registrar usvc.DirectoryRegistrar,
	log *logging.Logger,
) AnnounceRelayUseCase {
	return &announceRelayUseCaseImpl{
		id:        id,
		endpoint:  endpoint,
		identity:  identity,
		vrfPriv:   vrfPriv,
		vrfPub:    vrfPub,
		capacity:  capacity,
		feed:      feed,
		lottery:   lottery,
		registrar: registrar,
		log:       log,
	}
}

func (uc *announceRelayUseCaseImpl) Handle(ctx context.Context) (AnnounceRelayOutput, error) {
	dir, err := uc.feed.Fetch(ctx)
	if err != nil {
		return AnnounceRelayOutput{}, fmt.Errorf("announce: %w", err)
	}
	seed := dir.Seed

	uc.mu.Lock()
	done := uc.announced && uc.lastEpoch == seed.Epoch()
	uc.mu.Unlock()
	if done {
		return AnnounceRelayOutput{Epoch: seed.Epoch()}, nil
	}

	ticket, err := uc.lottery.MakeTicket(uc.vrfPriv, seed, uc.id)
	if err != nil {
		return AnnounceRelayOutput{}, fmt.Errorf("announce: %w", err)
	}
	rec := &vo.RelayRecord{
		ID:       uc.id.String(),
		Endpoint: uc.endpoint.String(),
		Identity: uc.identity.PublicKey().Bytes(),
		VRFKey:   uc.vrfPub.Bytes(),
		Capacity: uc.capacity,
		Score:    1,
		Status:   byte(vo.RelayActive),
		LastSeen: vo.Now().Unix(),
		Ticket:   vo.TicketFromLottery(ticket),
	}
	if err := rec.SignWith(uc.identity); err != nil {
		return AnnounceRelayOutput{}, fmt.Errorf("announce: %w", err)
	}
	if err := uc.registrar.Register(ctx, rec); err != nil {
		return AnnounceRelayOutput{}, fmt.Errorf("announce: %w", err)
	}

	uc.mu.Lock()
	uc.announced = true
	uc.lastEpoch = seed.Epoch()
	uc.mu.Unlock()
	uc.log.Noticef("registered for epoch %d as %s", seed.Epoch(), uc.id)
	return AnnounceRelayOutput{Epoch: seed.Epoch(), Registered: true}, nil
}
