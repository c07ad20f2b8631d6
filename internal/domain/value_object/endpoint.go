package value_object

import (
	"fmt"
	"net"
	"strconv"
)

// Endpoint is a "host:port" relay address.
type Endpoint struct {
	host string
	port uint16
}

func NewEndpoint(host string, port uint16) (Endpoint, error) {
	if port == 0 {
		return Endpoint{}, fmt.Errorf("invalid port: %d", port)
	}
	if ip := net.ParseIP(host); ip == nil && host == "" {
		return Endpoint{}, fmt.Errorf("invalid host")
	}
	return Endpoint{host, port}, nil
}

// EndpointFrom parses a "host:port" string.
func EndpointFrom(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, err
	}
	p, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return NewEndpoint(host, uint16(p))
}

func (e Endpoint) Host() string   { return e.host }
func (e Endpoint) Port() uint16   { return e.port }
func (e Endpoint) String() string { return net.JoinHostPort(e.host, strconv.Itoa(int(e.port))) }

// SubnetKey returns the diversity bucket the endpoint falls into. IPv4
// addresses bucket by /16 block; IPv6 by the first 32 bits; hostnames by
// the host itself.
func (e Endpoint) SubnetKey() string {
	if ip := net.ParseIP(e.host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return fmt.Sprintf("%d.%d.0.0/16", v4[0], v4[1])
		}
		v6 := ip.To16()
		return fmt.Sprintf("%02x%02x:%02x%02x::/32", v6[0], v6[1], v6[2], v6[3])
	}
	return e.host
}
