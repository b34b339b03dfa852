// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"os"
	"path/filepath"
	"strings"
)

// Fake engine behaviours, selected with FAKE_ENGINE_MODE.
const (
	ModeRecord   = "record"    // Write a segment every -segment_time seconds until signalled
	ModeFailOnce = "fail_once" // First run writes one segment and exits 1; later runs record
	ModeStubborn = "stubborn"  // Record, ignoring SIGTERM
)

// fakeEngineScript mimics the parts of ffmpeg's segment muxer the recorder
// relies on: it expands the strftime output template (last argument) and
// rolls to a new file every -segment_time seconds.
const fakeEngineScript = `#!/bin/sh
seg=5
prev=""
for arg in "$@"; do
  if [ "$prev" = "-segment_time" ]; then seg="$arg"; fi
  prev="$arg"
  template="$arg"
done

state="${FAKE_ENGINE_STATE:-/tmp}"
mode="${FAKE_ENGINE_MODE:-record}"
echo "$$" >> "$state/starts"

if [ "$mode" = "stubborn" ]; then
  trap '' TERM
else
  trap 'exit 255' TERM INT
fi

if [ "$mode" = "fail_once" ] && [ ! -e "$state/failed" ]; then
  path=$(date +"$template")
  echo "partial" > "$path"
  echo "$path" > "$state/failed"
  echo "rtsp: Connection refused" >&2
  exit 1
fi

while :; do
  path=$(date +"$template")
  echo "segment" > "$path"
  echo "$path" >> "$state/segments"
  sleep "$seg" &
  wait $!
done
`

// FakeEngine is an installed fake capture engine and its state directory.
type FakeEngine struct {
	Path     string // Executable to use as FFMPEG_BINARY
	StateDir string // FAKE_ENGINE_STATE
}

// NewFakeEngine describes a fake engine installed under dir.
func NewFakeEngine(dir string) *FakeEngine {
	return &FakeEngine{
		Path:     filepath.Join(dir, "bin", "ffmpeg"),
		StateDir: filepath.Join(dir, "engine-state"),
	}
}

// Install writes the engine script and its state directory.
func (f *FakeEngine) Install() error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(f.StateDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(f.Path, []byte(fakeEngineScript), 0755)
}

// Env returns the environment entries the engine reads.
func (f *FakeEngine) Env(mode string) []string {
	return []string{
		"FAKE_ENGINE_STATE=" + f.StateDir,
		"FAKE_ENGINE_MODE=" + mode,
	}
}

// Starts returns how many times the engine was launched.
func (f *FakeEngine) Starts() int {
	return len(f.lines("starts"))
}

// Segments returns every segment path the engine wrote while recording.
func (f *FakeEngine) Segments() []string {
	return f.lines("segments")
}

// FailedSegment returns the partial segment written by a fail_once run.
func (f *FakeEngine) FailedSegment() string {
	lines := f.lines("failed")
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

func (f *FakeEngine) lines(name string) []string {
	data, err := os.ReadFile(filepath.Join(f.StateDir, name))
	if err != nil {
		return nil
	}
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
