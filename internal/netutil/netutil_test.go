package netutil

import (
	"net"
	"strconv"
	"testing"
)

func TestSplitHostPort(t *testing.T) {
	cases := []struct {
		name     string
		addr     string
		wantHost string
		wantPort uint16
		wantErr  bool
	}{
		{"loopback", "127.0.0.1:1234", "127.0.0.1", 1234, false},
		{"all interfaces", "0.0.0.0:80", "0.0.0.0", 80, false},
		{"zero port", "127.0.0.1:0", "127.0.0.1", 0, false},
		{"missing port", "127.0.0.1", "", 0, true},
		{"not a number", "127.0.0.1:http", "", 0, true},
		{"port overflow", "127.0.0.1:70000", "", 0, true},
		{"empty", "", "", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			host, port, err := SplitHostPort(tc.addr)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.addr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SplitHostPort(%q): %v", tc.addr, err)
			}
			if host != tc.wantHost || port != tc.wantPort {
				t.Fatalf("SplitHostPort(%q) = %q:%d, want %q:%d", tc.addr, host, port, tc.wantHost, tc.wantPort)
			}
		})
	}
}

func TestPortOpen(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := listenerPort(t, ln)

	if !PortOpen("127.0.0.1", port, ProbeTimeout) {
		t.Fatalf("expected port %d to be open", port)
	}
	ln.Close()
	if PortOpen("127.0.0.1", port, ProbeTimeout) {
		t.Fatalf("expected port %d to be closed after listener shut down", port)
	}
}

func TestFindAvailablePortSkipsOccupiedRun(t *testing.T) {
	// Occupy a run of consecutive ports starting at an ephemeral base; the
	// scan must land on the first port past the run.
	base, listeners := occupyConsecutive(t, 3)
	defer func() {
		for _, ln := range listeners {
			ln.Close()
		}
	}()

	got := FindAvailablePort("127.0.0.1", base)
	if want := base + uint16(len(listeners)); got != want {
		t.Fatalf("FindAvailablePort = %d, want %d (first past occupied run)", got, want)
	}
	if PortOpen("127.0.0.1", got, ProbeTimeout) {
		t.Fatalf("FindAvailablePort returned occupied port %d", got)
	}
}

// occupyConsecutive binds n consecutive loopback ports and returns the
// first. Ephemeral allocations can collide with other tests, so it retries
// a few bases before giving up.
func occupyConsecutive(t *testing.T, n int) (uint16, []net.Listener) {
	t.Helper()
	for attempt := 0; attempt < 10; attempt++ {
		first, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		base := listenerPort(t, first)
		listeners := []net.Listener{first}
		ok := true
		for i := 1; i < n; i++ {
			ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(int(base)+i))
			if err != nil {
				ok = false
				break
			}
			listeners = append(listeners, ln)
		}
		if ok {
			return base, listeners
		}
		for _, ln := range listeners {
			ln.Close()
		}
	}
	t.Skip("could not reserve a consecutive port run")
	return 0, nil
}

func TestFindAvailablePortReturnsFreeBase(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	base := listenerPort(t, ln)
	ln.Close()

	if got := FindAvailablePort("127.0.0.1", base); got != base {
		t.Fatalf("FindAvailablePort = %d, want free base %d", got, base)
	}
}

func listenerPort(t *testing.T, ln net.Listener) uint16 {
	t.Helper()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split listener addr: %v", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		t.Fatalf("parse listener port: %v", err)
	}
	return uint16(port)
}
