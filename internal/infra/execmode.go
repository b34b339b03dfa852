package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the execution mode of the application.
type ExecMode string

const (
	// ExecModeUser keeps runtime state under the user's home directory
	ExecModeUser ExecMode = "user"
	// ExecModeSystem keeps runtime state in system locations (root)
	ExecModeSystem ExecMode = "system"
)

// ExecModeConfig holds runtime file locations based on execution mode.
type ExecModeConfig struct {
	Mode     ExecMode
	DataDir  string // Where the PID record and instance lock live
	PIDFile  string // PID record written by the launcher
	LockFile string // flock held by the running supervisor
	IsRoot   bool   // Whether running as root
}

const binaryName = "rtsprec"

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 {
		return modeConfig(ExecModeSystem, filepath.Join("/var/lib", binaryName), true)
	}
	return modeConfig(ExecModeUser, filepath.Join(GetRealUserHome(), "."+binaryName), false)
}

// WithPIDFile overrides the PID record location; the lock follows it.
func (c *ExecModeConfig) WithPIDFile(path string) *ExecModeConfig {
	if path == "" {
		return c
	}
	out := *c
	out.DataDir = filepath.Dir(path)
	out.PIDFile = path
	out.LockFile = filepath.Join(out.DataDir, binaryName+".lock")
	return &out
}

func modeConfig(mode ExecMode, dataDir string, isRoot bool) *ExecModeConfig {
	return &ExecModeConfig{
		Mode:     mode,
		DataDir:  dataDir,
		PIDFile:  filepath.Join(dataDir, binaryName+".pid"),
		LockFile: filepath.Join(dataDir, binaryName+".lock"),
		IsRoot:   isRoot,
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (non-root)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns root's home, so we use SUDO_USER to find the real user.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
