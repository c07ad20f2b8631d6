package entity

import (
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// RelayInfo is the immutable per-relay view that path selection and
// circuit building operate on. Score is the decayed value as of the
// snapshot instant.
type RelayInfo struct {
	ID        vo.RelayID
	Endpoint  vo.Endpoint
	Identity  vo.Ed25519PubKey
	VRFKey    vo.VRFPublicKey
	Capacity  uint32
	Score     float64
	Status    vo.RelayStatus
	LastSeen  vo.TimeStamp
	Ticket    vo.LotteryTicket
	HasTicket bool
}

// Directory is an immutable snapshot of the relay directory for one
// selection epoch. Refreshes swap whole snapshots; nothing mutates one in
// place.
type Directory struct {
	Seed        vo.SelectionSeed
	GeneratedAt vo.TimeStamp
	Relays      []RelayInfo
}

func (d *Directory) Epoch() uint64 { return d.Seed.Epoch() }
func (d *Directory) Len() int      { return len(d.Relays) }

// Find returns the relay with the given id, if present.
func (d *Directory) Find(id vo.RelayID) (RelayInfo, bool) {
	for _, r := range d.Relays {
		if r.ID.Equal(id) {
			return r, true
		}
	}
	return RelayInfo{}, false
}
