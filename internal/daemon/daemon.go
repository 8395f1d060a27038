// Package daemon implements tbl's two-phase boot: the first invocation
// re-executes itself as a detached background process and exits, the child
// recognises an environment marker and proceeds to run the server. The
// parent's part is fire-and-forget: it exits 0 once the child is spawned,
// regardless of whether the child later fails to start.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// EnvMarker is set in the child's environment so it does not daemonize
// again.
const EnvMarker = "TBL_DAEMONIZED"

// LogFileName is where the detached child's stdout/stderr land, relative
// to the config directory.
const LogFileName = "tbl.log"

// Daemonized reports whether this process is already the detached child.
func Daemonized() bool {
	return os.Getenv(EnvMarker) != ""
}

// Spawn re-executes the current binary with the same arguments as a
// detached background process: new session, stdin from the null device,
// stdout/stderr appended to the daemon log under configDir. It returns the
// child's PID without waiting for it.
func Spawn(configDir string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable: %w", err)
	}
	logPath := filepath.Join(configDir, LogFileName)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return 0, fmt.Errorf("open daemon log %s: %w", logPath, err)
	}
	defer logFile.Close()

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), EnvMarker+"=1")
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = detachAttr()
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawn background process: %w", err)
	}
	pid := cmd.Process.Pid
	// Detach so the child is not reaped through us.
	_ = cmd.Process.Release()
	return pid, nil
}
