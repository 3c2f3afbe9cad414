//go:build !windows
// +build !windows

package connector

import "syscall"

// getSysProcAttrs returns the platform-specific attributes used when
// forking the daemon process: a new session, so the daemon survives the
// parent CLI invocation exiting.
func getSysProcAttrs() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
