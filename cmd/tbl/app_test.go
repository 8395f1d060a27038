package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	"pkt.systems/pslog"
	"pkt.systems/tbl/internal/runstate"
)

func TestPrintURLBoxFramesURL(t *testing.T) {
	var buf bytes.Buffer
	url := "http://127.0.0.1:1234/bootstrap?token=abc"
	printURLBox(&buf, url)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("box has %d lines, want 3", len(lines))
	}
	if !strings.Contains(lines[1], url) {
		t.Fatalf("middle line lacks URL: %q", lines[1])
	}
	width := utf8.RuneCountInString(lines[0])
	for i, line := range lines {
		if utf8.RuneCountInString(line) != width {
			t.Fatalf("line %d width %d, want %d", i, utf8.RuneCountInString(line), width)
		}
	}
}

func TestBootstrapURLFollowsTLS(t *testing.T) {
	rec := runstate.RunRecord{Port: 4444, AuthToken: "aa", TLS: false}
	if got := bootstrapURL(rec); got != "http://127.0.0.1:4444/bootstrap?token=aa" {
		t.Fatalf("bootstrapURL = %q", got)
	}
	rec.TLS = true
	if got := bootstrapURL(rec); got != "https://127.0.0.1:4444/bootstrap?token=aa" {
		t.Fatalf("bootstrapURL = %q", got)
	}
}

func TestRootCommandYieldsToRunningInstance(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TBL_CONFIG_DIR", dir)

	// A live listener stands in for the running server; the record's port
	// accepting connections is what makes the record authoritative.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := uint16(ln.Addr().(*net.TCPAddr).Port)

	const tok = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	registry := runstate.New(dir)
	if err := registry.Save(runstate.RunRecord{PID: os.Getpid(), Port: port, AuthToken: tok}); err != nil {
		t.Fatalf("save run record: %v", err)
	}

	cmd := newRootCommand(pslog.NoopLogger())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--no-browser"})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("second invocation must succeed, got: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "already running") {
		t.Fatalf("output does not announce the live instance: %q", got)
	}
	if !strings.Contains(got, tok) {
		t.Fatalf("output does not re-issue the bootstrap URL: %q", got)
	}
	if strings.Contains(got, "Starting tbl server") {
		t.Fatalf("second invocation tried to start a server: %q", got)
	}
	rec, ok := registry.Load()
	if !ok {
		t.Fatal("run record was removed by the second invocation")
	}
	if rec.Port != port || rec.AuthToken != tok {
		t.Fatalf("run record disturbed: %+v", rec)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := newRootCommand(pslog.NoopLogger())
	want := map[string]bool{"stop": false, "status": false, "version": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("subcommand %q not registered", name)
		}
	}
	for _, name := range []string{"git-url", "addr", "tls-cert", "tls-key", "basic-user", "basic-pass", "no-browser", "foreground", "log-level"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("flag %q not registered", name)
		}
	}
	if cmd.PersistentFlags().Lookup("config") == nil {
		t.Fatal("persistent flag config not registered")
	}
}

func TestVersionCommandPrintsModule(t *testing.T) {
	cmd := newRootCommand(pslog.NoopLogger())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), "pkt.systems/tbl") {
		t.Fatalf("version output = %q", out.String())
	}
}

func TestExpandPathHome(t *testing.T) {
	t.Setenv("HOME", "/home/someone")
	got, err := expandPath("~/cfg.yaml")
	if err != nil {
		t.Fatalf("expandPath: %v", err)
	}
	if got != "/home/someone/cfg.yaml" {
		t.Fatalf("expandPath = %q", got)
	}
}
