package service

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// MemNetwork is an in-process network for tests and demos: every
// registered address serves pipe connections instead of TCP sockets.
type MemNetwork struct {
	mu sync.Mutex
	m  map[string]func(net.Conn)
}

// NewMemNetwork creates an empty in-process network.
func NewMemNetwork() *MemNetwork {
	return &MemNetwork{m: make(map[string]func(net.Conn))}
}

// Register binds an address to a serve function. Each Dial of the
// address runs serve with the far end of a fresh pipe.
func (n *MemNetwork) Register(addr string, serve func(net.Conn)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.m[addr] = serve
}

// Dial implements service.CircuitDialer against the registry.
func (n *MemNetwork) Dial(_ context.Context, addr string) (net.Conn, error) {
	n.mu.Lock()
	serve, ok := n.m[addr]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("mem network: no listener on %s", addr)
	}
	client, server := net.Pipe()
	go serve(server)
	return client, nil
}
