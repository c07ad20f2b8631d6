package service

import (
	"fmt"
	"time"

	"gopkg.in/op/go-logging.v1"

	"ikedadada/go-mixway/internal/domain/entity"
	vo "ikedadada/go-mixway/internal/domain/value_object"
)

// directoryFromDoc verifies the document signature against the directory
// identity and converts it into an immutable snapshot. Descriptors that
// fail their own validation are dropped from the snapshot, not fatal; a
// ticket is attached only when it parses and names the document epoch.
func directoryFromDoc(doc *vo.SignedDirectory, identity vo.Ed25519PubKey, log *logging.Logger) (*entity.Directory, error) {
	if err := doc.VerifySig(identity); err != nil {
		return nil, fmt.Errorf("directory feed: %w", err)
	}
	seed, err := vo.SelectionSeedFrom(doc.Epoch, doc.Seed)
	if err != nil {
		return nil, fmt.Errorf("directory feed: %w", err)
	}
	dir := &entity.Directory{
		Seed:        seed,
		GeneratedAt: vo.TimeStampFrom(time.Unix(doc.GeneratedAt, 0)),
		Relays:      make([]entity.RelayInfo, 0, len(doc.Relays)),
	}
	for i := range doc.Relays {
		info, err := relayInfoFromRecord(&doc.Relays[i], doc.Epoch)
		if err != nil {
			log.Warningf("directory feed: dropping %s: %v", doc.Relays[i].ID, err)
			continue
		}
		dir.Relays = append(dir.Relays, info)
	}
	return dir, nil
}

func relayInfoFromRecord(rec *vo.RelayRecord, epoch uint64) (entity.RelayInfo, error) {
	if err := rec.VerifySig(); err != nil {
		return entity.RelayInfo{}, err
	}
	id, err := vo.RelayIDFrom(rec.ID)
	if err != nil {
		return entity.RelayInfo{}, err
	}
	ep, err := vo.EndpointFrom(rec.Endpoint)
	if err != nil {
		return entity.RelayInfo{}, err
	}
	identity, err := vo.Ed25519PubKeyFromBytes(rec.Identity)
	if err != nil {
		return entity.RelayInfo{}, err
	}
	vrfKey, err := vo.VRFPublicKeyFrom(rec.VRFKey)
	if err != nil {
		return entity.RelayInfo{}, err
	}
	status := vo.RelayStatus(rec.Status)
	if !status.IsValid() {
		status = vo.RelayActive
	}
	info := entity.RelayInfo{
		ID:       id,
		Endpoint: ep,
		Identity: identity,
		VRFKey:   vrfKey,
		Capacity: rec.Capacity,
		Score:    rec.Score,
		Status:   status,
		LastSeen: vo.TimeStampFrom(time.Unix(rec.LastSeen, 0)),
	}
	if rec.Ticket.Epoch == epoch {
		if t, terr := rec.Ticket.ToTicket(id); terr == nil {
			info.Ticket = t
			info.HasTicket = true
		}
	}
	return info, nil
}
