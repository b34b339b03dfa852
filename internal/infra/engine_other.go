//go:build !linux

package infra

import "syscall"

// engineProcAttr puts the engine in its own process group, so a signal aimed
// at the supervisor's group does not reach it.
func engineProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}
