package value_object

import "fmt"

// RelayStatus is a relay's standing in the directory.
type RelayStatus byte

const (
	RelayActive RelayStatus = iota
	RelayDegraded
	RelayExcluded
)

func (s RelayStatus) String() string {
	switch s {
	case RelayActive:
		return "ACTIVE"
	case RelayDegraded:
		return "DEGRADED"
	case RelayExcluded:
		return "EXCLUDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(s))
	}
}

func (s RelayStatus) IsValid() bool {
	switch s {
	case RelayActive, RelayDegraded, RelayExcluded:
		return true
	default:
		return false
	}
}
