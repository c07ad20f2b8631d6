package entity

import (
	"sync"

	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// Relay is the aggregate root for one directory descriptor plus its
// observed reputation state. Each record carries its own lock; concurrent
// readers work from Snapshot copies, and score changes happen only through
// ApplyEvent.
type Relay struct {
	mu sync.Mutex

	id       vo.RelayID
	endpoint vo.Endpoint
	identity vo.Ed25519PubKey
	vrfKey   vo.VRFPublicKey
	capacity uint32

	score         float64
	scoredAt      vo.TimeStamp
	status        vo.RelayStatus
	excludedUntil vo.TimeStamp
	lastSeen      vo.TimeStamp
	ticket        vo.LotteryTicket
	hasTicket     bool
}

// NewRelay creates a relay record with the given starting score.
func NewRelay(id vo.RelayID, ep vo.Endpoint, identity vo.Ed25519PubKey, vrfKey vo.VRFPublicKey, capacity uint32, score float64, now vo.TimeStamp) *Relay {
	return &Relay{
		id:       id,
		endpoint: ep,
		identity: identity,
		vrfKey:   vrfKey,
		capacity: capacity,
		score:    score,
		scoredAt: now,
		status:   vo.RelayActive,
		lastSeen: now,
	}
}

func (r *Relay) ID() vo.RelayID { return r.id }

// Refresh applies a directory feed update: endpoint, capacity, liveness
// and the per-epoch ticket. Reputation state is local and survives it.
func (r *Relay) Refresh(ep vo.Endpoint, capacity uint32, lastSeen vo.TimeStamp, ticket *vo.LotteryTicket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoint = ep
	r.capacity = capacity
	if lastSeen.After(r.lastSeen) {
		r.lastSeen = lastSeen
	}
	if ticket != nil {
		r.ticket = *ticket
		r.hasTicket = true
	} else {
		r.hasTicket = false
	}
}

// ApplyEvent decays the score to the event instant, applies the event
// delta and recomputes the status. Integrity violations exclude the relay
// for the policy cool-down.
func (r *Relay) ApplyEvent(ev vo.ReputationEvent, pol ReputationPolicy) RelayInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.At.After(r.scoredAt) {
		r.score = pol.Decayed(r.score, ev.At.Sub(r.scoredAt))
		r.scoredAt = ev.At
	}
	r.score = pol.Clamp(r.score + pol.Delta(ev.Kind))

	if ev.Kind == vo.EventIntegrityViolation {
		r.status = vo.RelayExcluded
		r.excludedUntil = ev.At.Add(pol.ExcludeCooldown)
	} else {
		r.restatus(ev.At, pol)
	}
	return r.snapshotLocked(ev.At, pol)
}

// SnapshotAt returns the decayed view of the relay at the given instant.
func (r *Relay) SnapshotAt(now vo.TimeStamp, pol ReputationPolicy) RelayInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restatus(now, pol)
	return r.snapshotLocked(now, pol)
}

// restatus recomputes the derived status. Callers hold r.mu.
func (r *Relay) restatus(now vo.TimeStamp, pol ReputationPolicy) {
	if r.status == vo.RelayExcluded && now.Before(r.excludedUntil) {
		return
	}
	score := pol.Decayed(r.score, now.Sub(r.scoredAt))
	if score < pol.DegradeThreshold {
		r.status = vo.RelayDegraded
	} else {
		r.status = vo.RelayActive
	}
}

func (r *Relay) snapshotLocked(now vo.TimeStamp, pol ReputationPolicy) RelayInfo {
	score := r.score
	if now.After(r.scoredAt) {
		score = pol.Decayed(score, now.Sub(r.scoredAt))
	}
	return RelayInfo{
		ID:        r.id,
		Endpoint:  r.endpoint,
		Identity:  r.identity,
		VRFKey:    r.vrfKey,
		Capacity:  r.capacity,
		Score:     score,
		Status:    r.status,
		LastSeen:  r.lastSeen,
		Ticket:    r.ticket,
		HasTicket: r.hasTicket,
	}
}
