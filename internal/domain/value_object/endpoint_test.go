package value_object_test

import (
	"testing"

	"ikedadada/go-mixway/internal/domain/value_object"
)

func TestEndpoint_Table(t *testing.T) {
	tests := []struct {
		name       string
		host       string
		port       uint16
		expectsErr bool
	}{
		{"valid endpoint", "127.0.0.1", 5000, false},
		{"valid hostname", "relay.example", 5000, false},
		{"invalid port 0", "127.0.0.1", 0, true},
		{"invalid host", "", 5000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := value_object.NewEndpoint(tt.host, tt.port)
			if tt.expectsErr && err == nil {
				t.Errorf("expected error for host %s port %d", tt.host, tt.port)
			}
			if !tt.expectsErr && err != nil {
				t.Errorf("unexpected error for host %s port %d: %v", tt.host, tt.port, err)
			}
		})
	}
}

func TestEndpointFrom(t *testing.T) {
	ep, err := value_object.EndpointFrom("10.1.2.3:9000")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ep.Host() != "10.1.2.3" || ep.Port() != 9000 {
		t.Fatalf("got %s:%d", ep.Host(), ep.Port())
	}
	if _, err := value_object.EndpointFrom("10.1.2.3"); err == nil {
		t.Fatal("missing port accepted")
	}
	if _, err := value_object.EndpointFrom("10.1.2.3:0"); err == nil {
		t.Fatal("port 0 accepted")
	}
}

func TestSubnetKey(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"10.1.2.3:9000", "10.1.0.0/16"},
		{"10.1.200.9:9001", "10.1.0.0/16"},
		{"10.2.2.3:9000", "10.2.0.0/16"},
		{"relay.example:9000", "relay.example"},
	}
	for _, tt := range tests {
		ep, err := value_object.EndpointFrom(tt.addr)
		if err != nil {
			t.Fatalf("parse %s: %v", tt.addr, err)
		}
		if got := ep.SubnetKey(); got != tt.want {
			t.Errorf("SubnetKey(%s) = %s, want %s", tt.addr, got, tt.want)
		}
	}
}
