package gitrepo

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestEnsureToolReportsMissingGit(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	m := New(t.TempDir(), nil)
	err := m.EnsureTool()
	if err == nil {
		t.Skip("git resolvable without PATH on this platform")
	}
	if !errors.Is(err, ErrGitMissing) {
		t.Fatalf("err = %v, want ErrGitMissing", err)
	}
	if len(err.Error()) < len(ErrGitMissing.Error())+10 {
		t.Fatalf("error lacks install instructions: %v", err)
	}
}

func TestEnsureToolFindsGit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	if err := New(t.TempDir(), nil).EnsureTool(); err != nil {
		t.Fatalf("EnsureTool: %v", err)
	}
}

func TestEnsureClonesFreshCheckout(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	origin := t.TempDir()
	runGit(t, origin, "init", "--initial-branch=main")
	runGit(t, origin, "config", "user.email", "t@example.invalid")
	runGit(t, origin, "config", "user.name", "t")
	if err := os.WriteFile(filepath.Join(origin, "index.html"), []byte("<html></html>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	runGit(t, origin, "add", ".")
	runGit(t, origin, "commit", "-m", "initial")

	webDir := filepath.Join(t.TempDir(), "web")
	m := New(webDir, nil)
	if err := m.Ensure(context.Background(), origin); err != nil {
		t.Fatalf("Ensure (clone): %v", err)
	}
	if _, err := os.Stat(filepath.Join(webDir, "index.html")); err != nil {
		t.Fatalf("cloned checkout incomplete: %v", err)
	}

	// Second Ensure takes the update path and must not wipe the checkout.
	if err := m.Ensure(context.Background(), origin); err != nil {
		t.Fatalf("Ensure (update): %v", err)
	}
	if _, err := os.Stat(filepath.Join(webDir, "index.html")); err != nil {
		t.Fatalf("update removed checkout: %v", err)
	}
}

func TestEnsureCloneFailureIsFatal(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	webDir := filepath.Join(t.TempDir(), "web")
	m := New(webDir, nil)
	if err := m.Ensure(context.Background(), filepath.Join(t.TempDir(), "no-such-repo")); err == nil {
		t.Fatal("expected clone failure for nonexistent origin")
	}
}

func TestInstallHintIsNotEmpty(t *testing.T) {
	if installHint() == "" {
		t.Fatal("empty install hint")
	}
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}
