package service

import (
	"context"
	"net"

	usvc "ikedadada/go-mixway/internal/usecase/service"
)

// TCPDialer implements service.CircuitDialer over raw TCP connections.
type TCPDialer struct {
	d net.Dialer
}

// NewTCPDialer returns a CircuitDialer using TCP.
func NewTCPDialer() usvc.CircuitDialer { return &TCPDialer{} }

func (t *TCPDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	return t.d.DialContext(ctx, "tcp", addr)
}
