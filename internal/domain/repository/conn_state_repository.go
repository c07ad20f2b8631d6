package repository

import (
	"net"
	"time"

	"ikedadada/go-mixway/internal/domain/entity"
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// ConnStateRepository manages the per-hop connection states held by a
// relay, keyed by the link id the relay assigned. Alloc hands out ids
// from a bounded arena; ids of freed states never resolve again.
type ConnStateRepository interface {
	Alloc(*entity.ConnState) (vo.LinkID, error)
	Find(vo.LinkID) (*entity.ConnState, error)

	// Free detaches the state and returns it for the caller to close.
	Free(vo.LinkID) (*entity.ConnState, error)

	// FreeConn frees every state riding the given upstream conn and
	// returns them.
	FreeConn(net.Conn) []*entity.ConnState

	// SweepIdle frees every state idle longer than ttl and returns the
	// freed states.
	SweepIdle(ttl time.Duration) []*entity.ConnState

	Len() int
}
