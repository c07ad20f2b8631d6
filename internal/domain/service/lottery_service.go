package service

import (
	"ikedadada/go-mixway/internal/domain/aggregate"
	"ikedadada/go-mixway/internal/domain/entity"
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// PathConstraints scope one path draw.
type PathConstraints struct {
	Length                int
	MinReputation         float64
	RequireDistinctSubnet bool
	Exclude               map[vo.RelayID]struct{}
}

// LotteryService draws weighted relay paths from a directory snapshot and
// mints per-epoch tickets on the relay side. A draw is a pure function of
// the snapshot and the constraints; all randomness lives in the verified
// VRF tickets, so any holder of the same snapshot reproduces the same
// path.
type LotteryService interface {
	// SelectPath draws a path under the constraints. It returns
	// ErrInsufficientRelays when fewer eligible relays exist than hops
	// requested, and ErrConstraintUnsatisfiable when diversity rules
	// block every completion.
	SelectPath(dir *entity.Directory, cons PathConstraints) (*aggregate.Path, error)

	// VerifyPath recomputes the draw and checks that path matches it
	// hop for hop.
	VerifyPath(dir *entity.Directory, cons PathConstraints, path *aggregate.Path) error

	// MakeTicket mints a relay's lottery entry for the seed's epoch.
	MakeTicket(priv vo.VRFPrivateKey, seed vo.SelectionSeed, relay vo.RelayID) (vo.LotteryTicket, error)

	// VerifyTicket checks a ticket against the relay's VRF key and the
	// epoch seed.
	VerifyTicket(ticket vo.LotteryTicket, pub vo.VRFPublicKey, seed vo.SelectionSeed) error
}
