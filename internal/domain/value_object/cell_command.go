package value_object

import "fmt"

// CellCommand is the command tag carried in every cell header.
type CellCommand byte

const (
	CmdCreate   CellCommand = 0x01
	CmdCreated  CellCommand = 0x02
	CmdExtend   CellCommand = 0x03
	CmdExtended CellCommand = 0x04
	CmdData     CellCommand = 0x05
	CmdAck      CellCommand = 0x06
	CmdDestroy  CellCommand = 0x07
	CmdPadding  CellCommand = 0x08
)

// String returns the string representation of the cell command.
func (c CellCommand) String() string {
	switch c {
	case CmdCreate:
		return "CREATE"
	case CmdCreated:
		return "CREATED"
	case CmdExtend:
		return "EXTEND"
	case CmdExtended:
		return "EXTENDED"
	case CmdData:
		return "DATA"
	case CmdAck:
		return "ACK"
	case CmdDestroy:
		return "DESTROY"
	case CmdPadding:
		return "PADDING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(c))
	}
}

// IsValid checks if the command is a valid cell command.
func (c CellCommand) IsValid() bool {
	switch c {
	case CmdCreate, CmdCreated, CmdExtend, CmdExtended, CmdData, CmdAck, CmdDestroy, CmdPadding:
		return true
	default:
		return false
	}
}

// IsOnion reports whether cells with this command carry onion layers and
// consume per-direction sequence numbers. Create, Created and Padding are
// link-level: they ride before or outside the layered channel and carry a
// zero tag. Destroy appears in both roles; a zero tag marks the link-level
// form.
func (c CellCommand) IsOnion() bool {
	switch c {
	case CmdExtend, CmdExtended, CmdData, CmdAck, CmdDestroy:
		return true
	default:
		return false
	}
}
