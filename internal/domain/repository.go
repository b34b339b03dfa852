package domain

import (
	"context"
	"errors"
	"syscall"
	"time"
)

// ErrNoPIDRecord means no PID record file exists.
var ErrNoPIDRecord = errors.New("no pid record")

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is not a zombie.
	IsRunning(pid int) bool

	// Cmdline returns the argv of a running process.
	Cmdline(pid int) ([]string, error)

	// StartedAt returns the process creation time.
	StartedAt(pid int) (time.Time, error)

	// FindByIdentity returns PIDs whose command line matches the identity.
	FindByIdentity(identity ProcessIdentity) ([]int, error)

	// Children returns the PIDs of direct children of pid.
	Children(pid int) ([]int, error)

	// SignalGroup sends sig to the process group led by pid.
	SignalGroup(pid int, sig syscall.Signal) error

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// FileSystemManager handles filesystem operations on the output tree.
type FileSystemManager interface {
	// EnsureDir creates a directory and its parents.
	EnsureDir(path string) error

	// ListSegments returns files in dir whose name satisfies match.
	// A missing directory yields an empty list and no error.
	ListSegments(dir string, match func(name string) bool) ([]Segment, error)

	// Remove deletes a single file.
	Remove(path string) error
}

// PIDStore persists the PID record of the managed supervisor.
type PIDStore interface {
	// Read returns the recorded PID, or ErrNoPIDRecord when there is none.
	Read() (int, error)

	// Write records pid atomically.
	Write(pid int) error

	// Clear removes the record. Clearing a missing record is not an error.
	Clear() error

	// Path returns the record file location.
	Path() string
}

// CaptureProcess is a running capture engine.
type CaptureProcess interface {
	// PID returns the engine process id.
	PID() int

	// Done delivers the exit status exactly once, after the process is reaped.
	Done() <-chan ExitStatus

	// Terminate requests a graceful stop (SIGTERM to the engine's process group).
	Terminate() error

	// Kill forcibly stops the engine (SIGKILL to the engine's process group).
	Kill() error

	// StderrTail returns the last lines the engine wrote to stderr.
	StderrTail() string
}

// CaptureEngine starts capture processes. The engine is a black box:
// argv in, stderr and an exit code out.
type CaptureEngine interface {
	Start(ctx context.Context, argv []string) (CaptureProcess, error)
}

// Spawner launches the supervisor as a detached background process.
type Spawner interface {
	// Spawn starts argv detached from the caller and returns its PID.
	Spawn(argv []string) (int, error)
}

// InstanceLock guarantees a single supervisor per data directory.
type InstanceLock interface {
	// TryLock acquires the lock without blocking.
	TryLock() (bool, error)

	// Unlock releases the lock.
	Unlock() error

	// Path returns the lock file location.
	Path() string
}
