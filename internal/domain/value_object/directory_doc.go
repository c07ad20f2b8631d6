package value_object

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// TicketRecord is the wire form of a lottery ticket inside a descriptor.
type TicketRecord struct {
	Epoch  uint64 `cbor:"epoch"`
	Output []byte `cbor:"output"`
	Proof  []byte `cbor:"proof"`
}

// ToTicket converts the wire form into a verifiable lottery ticket.
func (t *TicketRecord) ToTicket(relay RelayID) (LotteryTicket, error) {
	output, err := VRFOutputFrom(t.Output)
	if err != nil {
		return LotteryTicket{}, err
	}
	proof, err := VRFProofFrom(t.Proof)
	if err != nil {
		return LotteryTicket{}, err
	}
	return LotteryTicket{Relay: relay, Epoch: t.Epoch, Output: output, Proof: proof}, nil
}

// TicketFromLottery converts a minted ticket into its wire form.
func TicketFromLottery(t LotteryTicket) TicketRecord {
	return TicketRecord{
		Epoch:  t.Epoch,
		Output: append([]byte(nil), t.Output[:]...),
		Proof:  append([]byte(nil), t.Proof[:]...),
	}
}

// RelayRecord is the wire form of one relay descriptor. Sig is the relay's
// identity signature over the CBOR encoding of the record with Sig nil.
type RelayRecord struct {
	ID       string       `cbor:"id"`
	Endpoint string       `cbor:"endpoint"`
	Identity []byte       `cbor:"identity"`
	VRFKey   []byte       `cbor:"vrf_key"`
	Capacity uint32       `cbor:"capacity"`
	Score    float64      `cbor:"score"`
	Status   byte         `cbor:"status"`
	LastSeen int64        `cbor:"last_seen"`
	Ticket   TicketRecord `cbor:"ticket"`
	Sig      []byte       `cbor:"sig"`
}

// SignedDirectory is the document the directory feed serves: the epoch
// seed and every registered descriptor, signed by the directory identity
// over the CBOR encoding with Sig nil.
type SignedDirectory struct {
	Epoch       uint64        `cbor:"epoch"`
	Seed        []byte        `cbor:"seed"`
	GeneratedAt int64         `cbor:"generated_at"`
	Relays      []RelayRecord `cbor:"relays"`
	Sig         []byte        `cbor:"sig"`
}

// SigPayload returns the byte string the record signature covers.
func (r *RelayRecord) SigPayload() ([]byte, error) {
	clone := *r
	clone.Sig = nil
	return cbor.Marshal(&clone)
}

// SignWith signs the record in place with the relay identity key.
func (r *RelayRecord) SignWith(key *Ed25519PrivKey) error {
	payload, err := r.SigPayload()
	if err != nil {
		return err
	}
	r.Sig = key.Sign(payload)
	return nil
}

// VerifySig checks the record signature against its own Identity field.
func (r *RelayRecord) VerifySig() error {
	identity, err := Ed25519PubKeyFromBytes(r.Identity)
	if err != nil {
		return err
	}
	payload, err := r.SigPayload()
	if err != nil {
		return err
	}
	if !identity.Verify(payload, r.Sig) {
		return fmt.Errorf("relay record %s: bad signature", r.ID)
	}
	return nil
}

// SigPayload returns the byte string the directory signature covers.
func (d *SignedDirectory) SigPayload() ([]byte, error) {
	clone := *d
	clone.Sig = nil
	return cbor.Marshal(&clone)
}

// SignWith signs the document in place with the directory identity key.
func (d *SignedDirectory) SignWith(key *Ed25519PrivKey) error {
	payload, err := d.SigPayload()
	if err != nil {
		return err
	}
	d.Sig = key.Sign(payload)
	return nil
}

// VerifySig checks the document signature against the given directory key.
func (d *SignedDirectory) VerifySig(identity Ed25519PubKey) error {
	payload, err := d.SigPayload()
	if err != nil {
		return err
	}
	if !identity.Verify(payload, d.Sig) {
		return fmt.Errorf("directory document: bad signature")
	}
	return nil
}

// EncodeSignedDirectory serializes the document.
func EncodeSignedDirectory(d *SignedDirectory) ([]byte, error) {
	return cbor.Marshal(d)
}

// DecodeSignedDirectory parses a document without verifying signatures.
func DecodeSignedDirectory(b []byte) (*SignedDirectory, error) {
	d := new(SignedDirectory)
	if err := cbor.Unmarshal(b, d); err != nil {
		return nil, err
	}
	return d, nil
}

// EncodeRelayRecord serializes one descriptor, as posted at registration.
func EncodeRelayRecord(r *RelayRecord) ([]byte, error) {
	return cbor.Marshal(r)
}

// DecodeRelayRecord parses a descriptor without verifying its signature.
func DecodeRelayRecord(b []byte) (*RelayRecord, error) {
	r := new(RelayRecord)
	if err := cbor.Unmarshal(b, r); err != nil {
		return nil, err
	}
	return r, nil
}
