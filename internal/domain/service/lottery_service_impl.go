package service

import (
	"fmt"
	"math"
	"sort"

	"ikedadada/go-mixway/internal/domain/aggregate"
	"ikedadada/go-mixway/internal/domain/entity"
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// lotteryServiceImpl implements LotteryService with an
// Efraimidis-Spirakis weighted draw over verified ticket outputs.
type lotteryServiceImpl struct {
	vrf VRFService
}

// NewLotteryService creates a LotteryService over the given VRF.
func NewLotteryService(vrf VRFService) LotteryService {
	return &lotteryServiceImpl{vrf: vrf}
}

// drawEntry is one eligible relay with its draw priority u^(1/w).
type drawEntry struct {
	info     entity.RelayInfo
	priority float64
}

// SelectPath draws a path under the constraints.
func (s *lotteryServiceImpl) SelectPath(dir *entity.Directory, cons PathConstraints) (*aggregate.Path, error) {
	entries, err := s.rank(dir, cons)
	if err != nil {
		return nil, err
	}

	picked := make([]entity.RelayInfo, 0, cons.Length)
	subnets := make(map[string]struct{}, cons.Length)
	for _, e := range entries {
		if len(picked) == cons.Length {
			break
		}
		if cons.RequireDistinctSubnet {
			key := e.info.Endpoint.SubnetKey()
			if _, used := subnets[key]; used {
				continue
			}
			subnets[key] = struct{}{}
		}
		picked = append(picked, e.info)
	}
	if len(picked) < cons.Length {
		return nil, fmt.Errorf("lottery: diversity rules leave %d of %d hops unfilled: %w",
			cons.Length-len(picked), cons.Length, vo.ErrConstraintUnsatisfiable)
	}
	return aggregate.NewPath(dir.Seed, picked, cons.RequireDistinctSubnet)
}

// VerifyPath recomputes the draw and compares it hop for hop.
func (s *lotteryServiceImpl) VerifyPath(dir *entity.Directory, cons PathConstraints, path *aggregate.Path) error {
	if !path.Seed().Equal(dir.Seed) {
		return fmt.Errorf("lottery: path drawn under a different seed")
	}
	want, err := s.SelectPath(dir, cons)
	if err != nil {
		return err
	}
	if want.Len() != path.Len() {
		return fmt.Errorf("lottery: path length %d, draw gives %d", path.Len(), want.Len())
	}
	wantIDs := want.IDs()
	for i, id := range path.IDs() {
		if !id.Equal(wantIDs[i]) {
			return fmt.Errorf("lottery: hop %d is %s, draw gives %s", i+1, id, wantIDs[i])
		}
	}
	return nil
}

// MakeTicket mints a relay's lottery entry for the seed's epoch.
func (s *lotteryServiceImpl) MakeTicket(priv vo.VRFPrivateKey, seed vo.SelectionSeed, relay vo.RelayID) (vo.LotteryTicket, error) {
	out, proof, err := s.vrf.Prove(priv, ticketAlpha(seed, relay))
	if err != nil {
		return vo.LotteryTicket{}, err
	}
	return vo.LotteryTicket{Relay: relay, Epoch: seed.Epoch(), Output: out, Proof: proof}, nil
}

// VerifyTicket checks a ticket against the relay's VRF key and the seed.
func (s *lotteryServiceImpl) VerifyTicket(ticket vo.LotteryTicket, pub vo.VRFPublicKey, seed vo.SelectionSeed) error {
	if ticket.Epoch != seed.Epoch() {
		return fmt.Errorf("lottery: ticket epoch %d, seed epoch %d", ticket.Epoch, seed.Epoch())
	}
	out, err := s.vrf.Verify(pub, ticketAlpha(seed, ticket.Relay), ticket.Proof)
	if err != nil {
		return err
	}
	if out != ticket.Output {
		return fmt.Errorf("lottery: ticket output does not match its proof")
	}
	return nil
}

// rank filters the snapshot down to eligible relays and orders them by
// draw priority, ties broken by relay id.
func (s *lotteryServiceImpl) rank(dir *entity.Directory, cons PathConstraints) ([]drawEntry, error) {
	if cons.Length < 1 {
		return nil, fmt.Errorf("lottery: path length %d out of range", cons.Length)
	}
	entries := make([]drawEntry, 0, dir.Len())
	for _, r := range dir.Relays {
		if !s.eligible(r, dir.Seed, cons) {
			continue
		}
		u := r.Ticket.Output.Uniform()
		entries = append(entries, drawEntry{info: r, priority: math.Pow(u, 1/r.Score)})
	}
	if len(entries) < cons.Length {
		return nil, fmt.Errorf("lottery: %d eligible relays for %d hops: %w",
			len(entries), cons.Length, vo.ErrInsufficientRelays)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority > entries[j].priority
		}
		return entries[i].info.ID.Less(entries[j].info.ID)
	})
	return entries, nil
}

// eligible applies the status, score, exclusion and ticket gates. A relay
// with no verifiable ticket for this epoch holds no lottery entry at all.
func (s *lotteryServiceImpl) eligible(r entity.RelayInfo, seed vo.SelectionSeed, cons PathConstraints) bool {
	if r.Status != vo.RelayActive {
		return false
	}
	if r.Score < cons.MinReputation || r.Score <= 0 {
		return false
	}
	if _, excluded := cons.Exclude[r.ID]; excluded {
		return false
	}
	if !r.HasTicket {
		return false
	}
	return s.VerifyTicket(r.Ticket, r.VRFKey, seed) == nil
}

// ticketAlpha is the VRF input: the seed encoding followed by the relay
// id, so every relay draws from its own slice of the epoch randomness.
func ticketAlpha(seed vo.SelectionSeed, relay vo.RelayID) []byte {
	return append(seed.Bytes(), relay.Bytes()...)
}
