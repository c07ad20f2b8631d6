package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	svc "ikedadada/go-mixway/internal/domain/service"
	vo "ikedadada/go-mixway/internal/domain/value_object"
	usvc "ikedadada/go-mixway/internal/usecase/service"
	"ikedadada/go-mixway/internal/worker"
)

// RegisterRelayInput carries one posted descriptor.
type RegisterRelayInput struct {
	Record *vo.RelayRecord
}

// RegisterRelayOutput reports the epoch the descriptor was accepted for.
type RegisterRelayOutput struct {
	Epoch uint64 `json:"epoch"`
}

// AuthorityConfig carries the directory operator tunables.
type AuthorityConfig struct {
	EpochInterval  time.Duration
	PublishTimeout time.Duration // defaults to five seconds
}

// DirectoryAuthorityUseCase is the directory operator's core: it accepts
// signed relay registrations, rolls the epoch seed on the configured
// interval and signs the document the feeds serve.
type DirectoryAuthorityUseCase interface {
	// Register validates one descriptor: record signature, well-formed
	// id, endpoint and keys, and a ticket proven against the current
	// epoch seed.
	Register(in RegisterRelayInput) (RegisterRelayOutput, error)

	// Document returns the signed directory for the current epoch.
	Document() (*vo.SignedDirectory, error)

	// Seed returns the current epoch seed.
	Seed() vo.SelectionSeed

	// Shutdown stops the epoch roller.
	Shutdown()
}

type directoryAuthorityUseCaseImpl struct {
	worker.Worker

	identity  *vo.Ed25519PrivKey
	lottery   svc.LotteryService
	publisher usvc.DirectoryPublisher
	log       *logging.Logger
	interval  time.Duration
	pubWait   time.Duration

	mu      sync.Mutex
	seed    vo.SelectionSeed
	records map[string]vo.RelayRecord
	doc     *vo.SignedDirectory // signed cache, nil when dirty
}

// NewDirectoryAuthorityUseCase starts the authority at the given seed.
// publisher may be nil when no feed mirror is configured.
func NewDirectoryAuthorityUseCase(
	identity *vo.Ed25519PrivKey,
	seed vo.SelectionSeed,
	lottery svc.LotteryService,
	publisher usvc.DirectoryPublisher,
	log *logging.Logger,
	cfg AuthorityConfig,
) DirectoryAuthorityUseCase {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	uc := &directoryAuthorityUseCaseImpl{
		identity:  identity,
		lottery:   lottery,
		publisher: publisher,
		log:       log,
		interval:  cfg.EpochInterval,
		pubWait:   cfg.PublishTimeout,
		seed:      seed,
		records:   make(map[string]vo.RelayRecord),
	}
	if uc.interval > 0 {
		uc.Go(uc.run)
	}
	return uc
}

func (uc *directoryAuthorityUseCaseImpl) Register(in RegisterRelayInput) (RegisterRelayOutput, error) {
	rec := in.Record
	if rec == nil {
		return RegisterRelayOutput{}, fmt.Errorf("register: empty record")
	}
	if err := rec.VerifySig(); err != nil {
		return RegisterRelayOutput{}, fmt.Errorf("register: %w", err)
	}
	id, err := vo.RelayIDFrom(rec.ID)
	if err != nil {
		return RegisterRelayOutput{}, fmt.Errorf("register: %w", err)
	}
	if _, err := vo.EndpointFrom(rec.Endpoint); err != nil {
		return RegisterRelayOutput{}, fmt.Errorf("register: %w", err)
	}
	vrfPub, err := vo.VRFPublicKeyFrom(rec.VRFKey)
	if err != nil {
		return RegisterRelayOutput{}, fmt.Errorf("register: %w", err)
	}
	ticket, err := rec.Ticket.ToTicket(id)
	if err != nil {
		return RegisterRelayOutput{}, fmt.Errorf("register: %w", err)
	}

	seed := uc.Seed()
	if ticket.Epoch != seed.Epoch() {
		return RegisterRelayOutput{}, fmt.Errorf("register: ticket epoch %d, current %d", ticket.Epoch, seed.Epoch())
	}
	if err := uc.lottery.VerifyTicket(ticket, vrfPub, seed); err != nil {
		return RegisterRelayOutput{}, fmt.Errorf("register: %w", err)
	}

	uc.mu.Lock()
	uc.records[rec.ID] = *rec
	uc.doc = nil
	uc.mu.Unlock()
	uc.log.Infof("relay %s registered for epoch %d", rec.ID, seed.Epoch())
	uc.publish()
	return RegisterRelayOutput{Epoch: seed.Epoch()}, nil
}

func (uc *directoryAuthorityUseCaseImpl) Document() (*vo.SignedDirectory, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.documentLocked()
}

// documentLocked signs the current table, in stable id order. Callers
// hold uc.mu.
func (uc *directoryAuthorityUseCaseImpl) documentLocked() (*vo.SignedDirectory, error) {
	if uc.doc != nil {
		return uc.doc, nil
	}
	ids := make([]string, 0, len(uc.records))
	for id := range uc.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	entropy := uc.seed.Entropy()
	doc := &vo.SignedDirectory{
		Epoch:       uc.seed.Epoch(),
		Seed:        append([]byte(nil), entropy[:]...),
		GeneratedAt: vo.Now().Unix(),
		Relays:      make([]vo.RelayRecord, 0, len(ids)),
	}
	for _, id := range ids {
		doc.Relays = append(doc.Relays, uc.records[id])
	}
	if err := doc.SignWith(uc.identity); err != nil {
		return nil, fmt.Errorf("sign directory: %w", err)
	}
	uc.doc = doc
	return doc, nil
}

func (uc *directoryAuthorityUseCaseImpl) Seed() vo.SelectionSeed {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.seed
}

func (uc *directoryAuthorityUseCaseImpl) Shutdown() { uc.Halt() }

func (uc *directoryAuthorityUseCaseImpl) run() {
	t := time.NewTicker(uc.interval)
	defer t.Stop()
	for {
		select {
		case <-uc.HaltCh():
			return
		case <-t.C:
			uc.advanceEpoch()
		}
	}
}

// advanceEpoch rolls the seed chain and drops relays that stopped
// re-registering more than one epoch ago.
func (uc *directoryAuthorityUseCaseImpl) advanceEpoch() {
	uc.mu.Lock()
	uc.seed = uc.seed.Next()
	epoch := uc.seed.Epoch()
	for id, rec := range uc.records {
		if rec.Ticket.Epoch+1 < epoch {
			delete(uc.records, id)
		}
	}
	uc.doc = nil
	uc.mu.Unlock()
	uc.log.Noticef("epoch %d begins", epoch)
	uc.publish()
}

func (uc *directoryAuthorityUseCaseImpl) publish() {
	if uc.publisher == nil {
		return
	}
	doc, err := uc.Document()
	if err != nil {
		uc.log.Warningf("publish: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), uc.pubWait)
	defer cancel()
	if err := uc.publisher.Publish(ctx, doc); err != nil {
		uc.log.Warningf("publish: %v", err)
	}
}
