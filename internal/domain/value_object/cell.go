package value_object

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

const (
	// CellSize is the fixed on-wire size of every cell.
	CellSize = 512

	// Version is the protocol version byte.
	Version byte = 0x01

	// CellTagSize is the truncated keyed BLAKE2b tag length.
	CellTagSize = 16

	cellHeaderSize = 16 // LinkID(4) + Version(1) + Cmd(1) + Seq(8) + Len(2)

	// MaxBodySize is the cell body capacity.
	MaxBodySize = CellSize - cellHeaderSize - CellTagSize
)

// Cell is one fixed-size protocol cell. Body holds the meaningful bytes
// only; EncodeCell pads the remainder with random bytes. The Tag covers
// Version, Cmd, Seq, Len and the meaningful body, keyed per hop and
// direction; the link id stays outside the tag because every hop remaps
// it. Link-level cells (Create, Created, Padding and relay-originated
// Destroy) carry a zero tag and Seq 0.
type Cell struct {
	Link    LinkID
	Version byte
	Cmd     CellCommand
	Seq     uint64
	Body    []byte
	Tag     [CellTagSize]byte
}

// EncodeCell serializes the cell into a fixed 512-byte slice with random
// padding between the body and the tag.
func EncodeCell(c *Cell) ([]byte, error) {
	if c.Link == 0 {
		return nil, fmt.Errorf("cell: zero link id")
	}
	if !c.Cmd.IsValid() {
		return nil, fmt.Errorf("cell: invalid command %d", byte(c.Cmd))
	}
	if len(c.Body) > MaxBodySize {
		return nil, fmt.Errorf("cell: body too big: %d > %d", len(c.Body), MaxBodySize)
	}
	buf := make([]byte, CellSize)
	binary.BigEndian.PutUint32(buf[0:4], c.Link.Uint32())
	buf[4] = c.Version
	buf[5] = byte(c.Cmd)
	binary.BigEndian.PutUint64(buf[6:14], c.Seq)
	binary.BigEndian.PutUint16(buf[14:16], uint16(len(c.Body)))
	copy(buf[cellHeaderSize:], c.Body)
	if _, err := rand.Read(buf[cellHeaderSize+len(c.Body) : CellSize-CellTagSize]); err != nil {
		return nil, err
	}
	copy(buf[CellSize-CellTagSize:], c.Tag[:])
	return buf, nil
}

// DecodeCell parses a 512-byte buffer. Padding is discarded; only the
// meaningful body bytes are kept.
func DecodeCell(buf []byte) (*Cell, error) {
	if len(buf) != CellSize {
		return nil, fmt.Errorf("cell: invalid length %d", len(buf))
	}
	link, err := LinkIDFrom(binary.BigEndian.Uint32(buf[0:4]))
	if err != nil {
		return nil, fmt.Errorf("cell: %w", err)
	}
	if buf[4] != Version {
		return nil, fmt.Errorf("cell: unsupported version 0x%02x", buf[4])
	}
	cmd := CellCommand(buf[5])
	if !cmd.IsValid() {
		return nil, fmt.Errorf("cell: invalid command %d", buf[5])
	}
	l := binary.BigEndian.Uint16(buf[14:16])
	if int(l) > MaxBodySize {
		return nil, fmt.Errorf("cell: invalid body length %d", l)
	}
	body := make([]byte, l)
	copy(body, buf[cellHeaderSize:cellHeaderSize+int(l)])
	c := &Cell{
		Link:    link,
		Version: buf[4],
		Cmd:     cmd,
		Seq:     binary.BigEndian.Uint64(buf[6:14]),
		Body:    body,
	}
	copy(c.Tag[:], buf[CellSize-CellTagSize:])
	return c, nil
}

// TagInput returns the byte string the cell tag authenticates.
func (c *Cell) TagInput() []byte {
	out := make([]byte, 0, 12+len(c.Body))
	out = append(out, c.Version, byte(c.Cmd))
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], c.Seq)
	out = append(out, seq[:]...)
	var ln [2]byte
	binary.BigEndian.PutUint16(ln[:], uint16(len(c.Body)))
	out = append(out, ln[:]...)
	return append(out, c.Body...)
}

// HasZeroTag reports whether the tag field is all zeroes, marking a
// link-level cell.
func (c *Cell) HasZeroTag() bool {
	var zero [CellTagSize]byte
	return c.Tag == zero
}
