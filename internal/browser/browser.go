// Package browser opens a URL in the operator's default browser. Launch is
// best effort; the bootstrap URL is always printed so the operator can open
// it manually when no graphical browser is reachable.
package browser

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Open launches the default browser against url and returns without
// waiting for it to exit.
func Open(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		if _, err := exec.LookPath("xdg-open"); err == nil {
			cmd = exec.Command("xdg-open", url)
		} else {
			cmd = exec.Command("sensible-browser", url)
		}
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return nil
}
