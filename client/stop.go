// Package client implements the out-of-band stop protocol for a running
// tbl instance. It deliberately depends on nothing but the api package and
// raw TCP: the request is a hand-assembled HTTP/1.1 POST, so a stop
// succeeds even when the server is mid-shutdown and its HTTP stack is
// already winding down.
//
// The client speaks plain TCP to 127.0.0.1 even when the server terminates
// TLS. Loopback traffic never leaves the host and the session secret in
// the Cookie header is what actually authorizes the request; skipping the
// handshake keeps the stop path free of certificate validation concerns.
package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"pkt.systems/tbl/api"
)

const (
	// DefaultTimeout bounds the dial and each I/O operation of a stop
	// request.
	DefaultTimeout = 5 * time.Second
	// StopPollInterval and StopPollAttempts define the liveness polling
	// loop after an acknowledged stop: 50 probes 100ms apart, five seconds
	// in total.
	StopPollInterval = 100 * time.Millisecond
	StopPollAttempts = 50
)

// ErrUnexpectedResponse reports that the server answered the shutdown
// request with something other than an acknowledgement.
var ErrUnexpectedResponse = errors.New("unexpected shutdown response")

// StopResult classifies the outcome of Stop.
type StopResult int

const (
	// StopConfirmed means the server acknowledged the request and its port
	// went dark within the polling window.
	StopConfirmed StopResult = iota
	// StopAmbiguous means the request was acknowledged but the port was
	// still answering when polling gave up. The server may still be
	// draining in-flight requests.
	StopAmbiguous
)

// SendShutdown delivers an authenticated shutdown request to the instance
// on port. Acknowledgement is lenient on purpose: a 200 status line or a
// shutting_down body both count, because the server may close the
// connection at any point after writing either.
func SendShutdown(port uint16, authToken string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()
	deadline := time.Now().Add(timeout)
	_ = conn.SetDeadline(deadline)

	request := fmt.Sprintf("POST %s HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"Cookie: %s=%s\r\n"+
		"Content-Length: 0\r\n"+
		"Connection: close\r\n"+
		"\r\n",
		api.ShutdownPath, addr, api.CookieName, authToken)
	if _, err := io.WriteString(conn, request); err != nil {
		return fmt.Errorf("send shutdown request: %w", err)
	}

	// Read until EOF. The server sets Connection: close semantics via our
	// request, and a shutting-down server may cut the stream short; what
	// matters is whether an acknowledgement made it across.
	raw, err := io.ReadAll(conn)
	response := string(raw)
	if acked(response) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read shutdown response: %w", err)
	}
	return fmt.Errorf("%w: %s", ErrUnexpectedResponse, firstLine(response))
}

// WaitStopped polls the instance port until it stops accepting connections
// or the polling budget runs out. Returns true when the port went dark.
func WaitStopped(port uint16) bool {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	for i := 0; i < StopPollAttempts; i++ {
		time.Sleep(StopPollInterval)
		conn, err := net.DialTimeout("tcp", addr, StopPollInterval)
		if err != nil {
			return true
		}
		_ = conn.Close()
	}
	return false
}

// Stop sends the shutdown request and waits for the port to close. The
// error is non-nil only when the request itself failed; an acknowledged
// stop that outlives the polling window comes back as StopAmbiguous.
func Stop(port uint16, authToken string) (StopResult, error) {
	if err := SendShutdown(port, authToken, DefaultTimeout); err != nil {
		return StopAmbiguous, err
	}
	if WaitStopped(port) {
		return StopConfirmed, nil
	}
	return StopAmbiguous, nil
}

func acked(response string) bool {
	return strings.Contains(response, "200") ||
		strings.Contains(response, api.StatusShuttingDown)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimRight(s, "\r")
}
