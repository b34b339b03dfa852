package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/eliteGoblin/rtsprec/internal/domain"
)

// RecordSubcommand is the CLI verb that runs the supervisor in the foreground.
const RecordSubcommand = "record"

// DetachedSpawner implements domain.Spawner by starting the process in a
// new session with no stdio, so it outlives the launcher.
type DetachedSpawner struct{}

// NewSpawner creates a detached spawner.
func NewSpawner() domain.Spawner {
	return &DetachedSpawner{}
}

// Spawn starts argv detached and returns its PID.
func (s *DetachedSpawner) Spawn(argv []string) (int, error) {
	if len(argv) == 0 {
		return 0, errors.New("empty command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // New session and process group, no controlling terminal
	}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	// Reap the child if it exits while we are still around (restart, tests).
	go func() { _ = cmd.Wait() }()

	return cmd.Process.Pid, nil
}

// RecordCommand returns the argv the launcher spawns: this executable's
// record subcommand, carrying the config file along when one was given.
func RecordCommand(executable, configPath string) []string {
	argv := []string{executable, RecordSubcommand}
	if configPath != "" {
		argv = append(argv, "--config", configPath)
	}
	return argv
}

// SelfExecutable returns the absolute path of the running binary.
func SelfExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return exe, nil
}

// SupervisorIdentity describes how a supervisor started from executable
// appears in the process table.
func SupervisorIdentity(executable string) domain.ProcessIdentity {
	return domain.ProcessIdentity{
		Executable: filepath.Base(executable),
		Subcommand: RecordSubcommand,
	}
}

// Ensure DetachedSpawner implements domain.Spawner.
var _ domain.Spawner = (*DetachedSpawner)(nil)
