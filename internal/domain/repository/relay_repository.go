package repository

import (
	"ikedadada/go-mixway/internal/domain/entity"
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// RelayRepository is the client-side relay book: directory descriptors
// merged with locally observed reputation. Feed refreshes update the
// descriptor half only; scores and exclusions survive them.
type RelayRepository interface {
	// UpdateFromDirectory merges a feed snapshot, creating unknown relays
	// and refreshing known ones in place.
	UpdateFromDirectory(*entity.Directory) error

	// Snapshot returns the decayed view of every known relay under the
	// current selection seed.
	Snapshot(now vo.TimeStamp) (*entity.Directory, error)

	// Apply records a reputation event against its relay.
	Apply(vo.ReputationEvent) error

	Find(vo.RelayID) (*entity.Relay, error)
}
