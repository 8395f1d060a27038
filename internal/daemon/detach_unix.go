//go:build !windows

package daemon

import "syscall"

// detachAttr puts the child in a new session so it survives the parent's
// terminal going away.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
