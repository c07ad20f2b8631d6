package service

import (
	"context"
	"net"
)

// CircuitDialer opens transport connections to relays. Implementations
// honor the context deadline for the whole connection attempt.
type CircuitDialer interface {
	Dial(ctx context.Context, addr string) (net.Conn, error)
}
