// Package gitrepo drives the external git tool that keeps the served web
// checkout current. It is a collaborator behind a narrow surface: ensure
// the tool exists, ensure the checkout exists and is fresh. Everything else
// about git stays outside tbl's core.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"pkt.systems/pslog"
)

// ErrGitMissing reports that the git binary is unavailable on PATH.
var ErrGitMissing = errors.New("git not available on PATH")

// Manager shallow-clones and updates the checkout under WebDir.
type Manager struct {
	WebDir string
	Logger pslog.Logger
}

// New returns a manager for the checkout at webDir.
func New(webDir string, logger pslog.Logger) *Manager {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Manager{WebDir: webDir, Logger: logger}
}

// EnsureTool verifies that a working git binary is on PATH. The returned
// error carries per-OS installation instructions suitable for showing to
// the operator verbatim.
func (m *Manager) EnsureTool() error {
	cmd := exec.Command("git", "--version")
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Run(); err == nil {
		return nil
	}
	return fmt.Errorf("%w\n%s", ErrGitMissing, installHint())
}

// Ensure makes the checkout under WebDir match url: a shallow fetch and
// hard reset when a repository already exists, a fresh depth-1 clone
// otherwise. Fetch or reset failures keep the existing checkout and are
// not fatal; a failed fresh clone is.
func (m *Manager) Ensure(ctx context.Context, url string) error {
	gitDir := filepath.Join(m.WebDir, ".git")
	if dirExists(m.WebDir) && dirExists(gitDir) {
		return m.update(ctx)
	}
	return m.clone(ctx, url)
}

func (m *Manager) update(ctx context.Context) error {
	if out, err := m.git(ctx, "-C", m.WebDir, "fetch", "--depth", "1", "origin"); err != nil {
		m.Logger.Warn("git fetch failed, keeping existing checkout", "error", err, "output", out)
		return nil
	}
	if out, err := m.git(ctx, "-C", m.WebDir, "reset", "--hard", "origin/HEAD"); err != nil {
		m.Logger.Warn("git reset failed, keeping existing checkout", "error", err, "output", out)
	}
	return nil
}

func (m *Manager) clone(ctx context.Context, url string) error {
	if dirExists(m.WebDir) {
		if err := os.RemoveAll(m.WebDir); err != nil {
			return fmt.Errorf("remove stale web dir %s: %w", m.WebDir, err)
		}
	}
	if out, err := m.git(ctx, "clone", "--depth", "1", url, m.WebDir); err != nil {
		return fmt.Errorf("git clone %s: %w\n%s", url, err, out)
	}
	return nil
}

func (m *Manager) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func installHint() string {
	switch runtime.GOOS {
	case "darwin":
		return strings.Join([]string{
			"Install git on macOS:",
			"  xcode-select --install",
			"or using Homebrew:",
			"  brew install git",
		}, "\n")
	case "windows":
		return strings.Join([]string{
			"Install Git for Windows from:",
			"  https://git-scm.com/download/win",
			"or via winget:",
			"  winget install --id Git.Git -e",
		}, "\n")
	case "linux":
		return strings.Join([]string{
			"Install git on Linux:",
			"  Debian/Ubuntu: sudo apt-get install git",
			"  Fedora:        sudo dnf install git",
			"  Arch Linux:    sudo pacman -S git",
		}, "\n")
	default:
		return "Please install git from https://git-scm.com/downloads"
	}
}
