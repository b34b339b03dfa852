package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/eliteGoblin/rtsprec/internal/domain"
)

// ErrNoPIDRecord means no PID record file exists.
var ErrNoPIDRecord = domain.ErrNoPIDRecord

// PIDFile implements domain.PIDStore as a single-line text file.
// Written by the launcher only; everyone else treats it as advisory.
type PIDFile struct {
	path string
}

// NewPIDFile creates a PID record at path.
func NewPIDFile(path string) domain.PIDStore {
	return &PIDFile{path: path}
}

// Path returns the record file location.
func (f *PIDFile) Path() string {
	return f.path
}

// Read returns the recorded PID.
func (f *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, ErrNoPIDRecord
		}
		return 0, err
	}

	raw := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(raw)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed pid record %q in %s", raw, f.path)
	}
	return pid, nil
}

// Write records pid atomically (write + rename).
func (f *PIDFile) Write(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}

	// Write to temp file first (unique per process to avoid race)
	tmpPath := fmt.Sprintf("%s.%d.tmp", f.path, os.Getpid())
	if err := os.WriteFile(tmpPath, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return err
	}

	// Atomic rename
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return err
	}
	return nil
}

// Clear removes the record. A missing record is already clear.
func (f *PIDFile) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Ensure PIDFile implements domain.PIDStore.
var _ domain.PIDStore = (*PIDFile)(nil)
