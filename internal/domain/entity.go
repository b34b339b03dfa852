// Package domain contains core recording entities and interfaces.
// This is the innermost layer - no external dependencies.
package domain

import (
	"path/filepath"
	"time"
)

// Outcome classifies how a recording session ended.
type Outcome string

const (
	OutcomeCleanExit         Outcome = "clean_exit"
	OutcomeFailureExit       Outcome = "failure_exit"
	OutcomeSpawnFailure      Outcome = "spawn_failure"
	OutcomeShutdownRequested Outcome = "shutdown_requested"
)

// IsFailure reports whether the outcome counts against the restart state.
// An unexpected clean exit counts: a live stream should never end on its own.
func (o Outcome) IsFailure() bool {
	return o != OutcomeShutdownRequested
}

// SessionState is the supervisor's position in its restart loop.
type SessionState string

const (
	StateStarting      SessionState = "starting"
	StateRunning       SessionState = "running"
	StateExitedClean   SessionState = "exited_clean"
	StateExitedFailure SessionState = "exited_failure"
	StateShuttingDown  SessionState = "shutting_down"
	StateTerminated    SessionState = "terminated"
)

// ExitStatus is what the supervisor learns about a finished capture process.
type ExitStatus struct {
	Code   int    // -1 when killed by a signal
	Signal string // Signal name when Code is -1
	Err    error  // Wait error other than a plain non-zero exit
}

// Success reports a zero exit code. Err does not affect it: a wait error
// after a known exit code is about stderr plumbing, not the engine.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == ""
}

// Session is one run of the capture engine, from spawn to exit.
// Sessions are only logged, never persisted.
type Session struct {
	ID               string
	StartedAt        time.Time
	EndedAt          time.Time
	Dir              string   // Dated directory active at session start
	Command          []string // Full argv including the engine path
	PID              int
	Exit             ExitStatus
	Outcome          Outcome
	ShutdownTimedOut bool // Engine ignored both SIGTERM and SIGKILL within the grace periods
}

// Duration returns how long the session ran.
func (s *Session) Duration() time.Duration {
	if s.EndedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Segment is one media file written by the capture engine.
type Segment struct {
	Path    string
	Name    string
	ModTime time.Time
	Size    int64
}

// RestartState is the minimal bookkeeping the restart policy needs.
type RestartState struct {
	ConsecutiveFailures int
	LastFailure         time.Time
}

// RecordFailure bumps the failure count.
func (r *RestartState) RecordFailure(at time.Time) {
	r.ConsecutiveFailures++
	r.LastFailure = at
}

// Reset clears the failure count after a clean shutdown or a stable session.
func (r *RestartState) Reset() {
	r.ConsecutiveFailures = 0
	r.LastFailure = time.Time{}
}

// InstanceSource tells where a running supervisor was discovered.
type InstanceSource string

const (
	SourcePIDRecord   InstanceSource = "pid_record"
	SourceProcessScan InstanceSource = "process_scan"
)

// Instance is a live supervisor process found by the launcher.
type Instance struct {
	PID       int
	Source    InstanceSource
	Cmdline   []string
	StartedAt time.Time
}

// ProcessIdentity describes how the supervisor's command line looks,
// so the launcher can tell it apart from an unrelated process that reused its PID.
type ProcessIdentity struct {
	Executable string // Base name of the binary, e.g. "rtsprec"
	Subcommand string // e.g. "record"
}

// Matches reports whether argv belongs to a supervisor process.
func (id ProcessIdentity) Matches(argv []string) bool {
	if len(argv) < 2 || id.Executable == "" {
		return false
	}
	if filepath.Base(argv[0]) != id.Executable {
		return false
	}
	if id.Subcommand == "" {
		return true
	}
	for _, arg := range argv[1:] {
		if arg == id.Subcommand {
			return true
		}
	}
	return false
}
