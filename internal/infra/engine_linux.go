package infra

import "syscall"

// engineProcAttr puts the engine in its own process group, so a signal aimed
// at the supervisor's group does not reach it, and asks the kernel to send it
// SIGTERM if the supervisor dies without stopping it.
func engineProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
