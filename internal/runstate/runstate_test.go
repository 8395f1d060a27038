package runstate

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestSaveLoadRoundtrip(t *testing.T) {
	reg := New(t.TempDir())
	rec := RunRecord{
		PID:       4321,
		Port:      18080,
		AuthToken: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		TLS:       true,
	}
	if err := reg.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok := reg.Load()
	if !ok {
		t.Fatal("Load: no record after Save")
	}
	if got != rec {
		t.Fatalf("Load = %+v, want %+v", got, rec)
	}
}

func TestLoadFailsSoft(t *testing.T) {
	cases := []struct {
		name    string
		prepare func(t *testing.T, reg *Registry)
	}{
		{"missing file", func(t *testing.T, reg *Registry) {}},
		{"corrupt yaml", func(t *testing.T, reg *Registry) {
			writeRecord(t, reg, "{{{not yaml")
		}},
		{"zero port", func(t *testing.T, reg *Registry) {
			writeRecord(t, reg, "pid: 1\nport: 0\nauth_token: abc\ntls: false\n")
		}},
		{"empty token", func(t *testing.T, reg *Registry) {
			writeRecord(t, reg, "pid: 1\nport: 8080\nauth_token: \"\"\ntls: false\n")
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := New(t.TempDir())
			tc.prepare(t, reg)
			if _, ok := reg.Load(); ok {
				t.Fatal("Load reported a usable record")
			}
		})
	}
}

func TestClearIsIdempotent(t *testing.T) {
	reg := New(t.TempDir())
	if err := reg.Save(RunRecord{PID: 1, Port: 9, AuthToken: "tok"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	reg.Clear()
	if _, ok := reg.Load(); ok {
		t.Fatal("record still loadable after Clear")
	}
	// Clearing an absent record must not panic or complain.
	reg.Clear()
}

func TestSaveOverwritesPreviousRecord(t *testing.T) {
	reg := New(t.TempDir())
	if err := reg.Save(RunRecord{PID: 1, Port: 1000, AuthToken: "old"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := reg.Save(RunRecord{PID: 2, Port: 2000, AuthToken: "new"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok := reg.Load()
	if !ok {
		t.Fatal("Load: no record")
	}
	if got.PID != 2 || got.Port != 2000 || got.AuthToken != "new" {
		t.Fatalf("Load = %+v, want overwritten record", got)
	}
	// No temp file residue in the registry dir.
	entries, err := os.ReadDir(filepath.Dir(reg.Path()))
	if err != nil {
		t.Fatalf("read run dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("run dir holds %d entries, want only the record", len(entries))
	}
}

func TestAlive(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	rec := RunRecord{PID: os.Getpid(), Port: uint16(port), AuthToken: "tok"}
	if !Alive(rec) {
		t.Fatalf("expected record on open port %d to be alive", port)
	}
	ln.Close()
	if Alive(rec) {
		t.Fatalf("expected record on closed port %d to be stale", port)
	}
}

func TestProcessRunning(t *testing.T) {
	if !ProcessRunning(os.Getpid()) {
		t.Fatal("own PID reported as not running")
	}
	// PIDs beyond the kernel's default pid_max should not exist.
	if ProcessRunning(1 << 30) {
		t.Fatal("absurd PID reported as running")
	}
}

func writeRecord(t *testing.T, reg *Registry, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(reg.Path()), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(reg.Path(), []byte(content), 0o600); err != nil {
		t.Fatalf("write record: %v", err)
	}
}
