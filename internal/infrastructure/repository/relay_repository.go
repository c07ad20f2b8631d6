package repository

import (
	"fmt"
	"sort"
	"sync"

	"ikedadada/go-mixway/internal/domain/entity"
	"ikedadada/go-mixway/internal/domain/repository"
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// relayRepositoryImpl is the client's relay book: directory descriptors
// merged with locally observed reputation. Feed merges refresh the
// descriptor half in place and leave scores and exclusions alone.
type relayRepositoryImpl struct {
	mu          sync.RWMutex
	m           map[vo.RelayID]*entity.Relay
	pol         entity.ReputationPolicy
	seed        vo.SelectionSeed
	generatedAt vo.TimeStamp
}

// NewRelayRepository creates an empty relay book under the given
// reputation policy.
func NewRelayRepository(pol entity.ReputationPolicy) repository.RelayRepository {
	return &relayRepositoryImpl{m: make(map[vo.RelayID]*entity.Relay), pol: pol}
}

func (r *relayRepositoryImpl) UpdateFromDirectory(dir *entity.Directory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := vo.Now()
	for _, info := range dir.Relays {
		var ticket *vo.LotteryTicket
		if info.HasTicket {
			t := info.Ticket
			ticket = &t
		}
		rel, ok := r.m[info.ID]
		if !ok {
			score := info.Score
			if score <= 0 {
				score = r.pol.Baseline
			}
			rel = entity.NewRelay(info.ID, info.Endpoint, info.Identity, info.VRFKey, info.Capacity, score, now)
			r.m[info.ID] = rel
		}
		rel.Refresh(info.Endpoint, info.Capacity, info.LastSeen, ticket)
	}
	r.seed = dir.Seed
	r.generatedAt = dir.GeneratedAt
	return nil
}

func (r *relayRepositoryImpl) Snapshot(now vo.TimeStamp) (*entity.Directory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dir := &entity.Directory{
		Seed:        r.seed,
		GeneratedAt: r.generatedAt,
		Relays:      make([]entity.RelayInfo, 0, len(r.m)),
	}
	for _, rel := range r.m {
		dir.Relays = append(dir.Relays, rel.SnapshotAt(now, r.pol))
	}
	sort.Slice(dir.Relays, func(i, j int) bool {
		return dir.Relays[i].ID.Less(dir.Relays[j].ID)
	})
	return dir, nil
}

func (r *relayRepositoryImpl) Apply(ev vo.ReputationEvent) error {
	r.mu.RLock()
	rel, ok := r.m[ev.Relay]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("relay %s: %w", ev.Relay, repository.ErrNotFound)
	}
	rel.ApplyEvent(ev, r.pol)
	return nil
}

func (r *relayRepositoryImpl) Find(id vo.RelayID) (*entity.Relay, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rel, ok := r.m[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rel, nil
}
