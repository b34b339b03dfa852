// Package infra implements infrastructure concerns (process, filesystem, PID record, logging).
package infra

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"

	"github.com/eliteGoblin/rtsprec/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// IsRunning checks if a PID exists and has not exited.
// A zombie has exited and only waits to be reaped, so it counts as not running.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	// On Unix, FindProcess always succeeds
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists. EPERM means it exists but belongs to someone else.
	if err := proc.Signal(syscall.Signal(0)); err != nil && !errors.Is(err, syscall.EPERM) {
		return false
	}

	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	status, err := p.Status()
	if err != nil {
		return true // Exists, but status is unreadable on this platform
	}
	for _, s := range status {
		if s == process.Zombie {
			return false
		}
	}
	return true
}

// Cmdline returns the argv of a running process.
func (pm *ProcessManagerImpl) Cmdline(pid int) ([]string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, err
	}
	return p.CmdlineSlice()
}

// StartedAt returns the process creation time.
func (pm *ProcessManagerImpl) StartedAt(pid int) (time.Time, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return time.Time{}, err
	}
	ms, err := p.CreateTime()
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// FindByIdentity scans the process table for live processes whose command line
// matches identity. The caller's own PID is never returned.
func (pm *ProcessManagerImpl) FindByIdentity(identity domain.ProcessIdentity) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	self := os.Getpid()
	var found []int
	for _, p := range procs {
		pid := int(p.Pid)
		if pid == self {
			continue
		}
		argv, err := p.CmdlineSlice()
		if err != nil {
			continue // Process may have exited
		}
		if !identity.Matches(argv) {
			continue
		}
		if !pm.IsRunning(pid) {
			continue
		}
		found = append(found, pid)
	}
	return found, nil
}

// Children returns the PIDs of direct children of pid.
func (pm *ProcessManagerImpl) Children(pid int) ([]int, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var children []int
	for _, p := range procs {
		ppid, err := p.Ppid()
		if err != nil {
			continue
		}
		if int(ppid) == pid {
			children = append(children, int(p.Pid))
		}
	}
	return children, nil
}

// SignalGroup sends sig to the process group led by pid, falling back to
// the single process when pid does not lead a group.
func (pm *ProcessManagerImpl) SignalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return unix.ESRCH
	}
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		err = unix.Kill(pid, sig)
	}
	return err
}

// GetCurrentPID returns the current process PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
