// Package netutil implements the connect-probe heuristics tbl uses for port
// selection and instance liveness. Probing by connecting (rather than
// binding) is inherently racy against other processes grabbing a port
// between probe and bind; callers treat a later bind failure as its own
// retryable error rather than a contract violation.
package netutil

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	// ProbeTimeout bounds a single availability probe during port scanning.
	ProbeTimeout = 150 * time.Millisecond
	// LivenessTimeout bounds the probe that decides whether a persisted run
	// record still points at a living server.
	LivenessTimeout = 200 * time.Millisecond
	// MaxPortAttempts caps how many consecutive ports are scanned before
	// falling back to the requested base port.
	MaxPortAttempts = 100
)

// SplitHostPort parses a bind address template such as "127.0.0.1:1234"
// into host and numeric base port.
func SplitHostPort(addr string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("addr must be host:port, got %q: %w", addr, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in addr %q: %w", addr, err)
	}
	return host, uint16(port), nil
}

// PortOpen reports whether something accepts TCP connections on host:port
// within timeout.
func PortOpen(host string, port uint16, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))), timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// FindAvailablePort scans up to MaxPortAttempts consecutive ports starting
// at base and returns the first one nothing is listening on. When every
// probed port is occupied the base port is returned unchanged so the
// subsequent bind surfaces a clear error instead of a silently wrong port.
func FindAvailablePort(host string, base uint16) uint16 {
	port := base
	for i := 0; i < MaxPortAttempts; i++ {
		if !PortOpen(host, port, ProbeTimeout) {
			return port
		}
		if port == 1<<16-1 {
			break
		}
		port++
	}
	return base
}
