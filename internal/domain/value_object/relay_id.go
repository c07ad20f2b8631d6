package value_object

import (
	"bytes"

	"github.com/google/uuid"
)

// RelayID identifies a relay in the directory.
type RelayID struct{ val uuid.UUID }

func NewRelayID() RelayID { return RelayID{uuid.New()} }
func RelayIDFrom(s string) (RelayID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return RelayID{}, err
	}
	return RelayID{val: id}, nil
}
func (r RelayID) String() string       { return r.val.String() }
func (r RelayID) Equal(o RelayID) bool { return r.val == o.val }
func (r RelayID) Bytes() []byte {
	return r.val[:]
}

// Less orders relay ids bytewise, used for deterministic tie-breaking.
func (r RelayID) Less(o RelayID) bool { return bytes.Compare(r.val[:], o.val[:]) < 0 }
