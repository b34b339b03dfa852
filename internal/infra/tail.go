package infra

import (
	"strings"
	"sync"
)

// TailBuffer keeps the last N lines written to it.
type TailBuffer struct {
	mu      sync.Mutex
	lines   []string
	max     int
	partial strings.Builder
}

// NewTailBuffer keeps at most maxLines complete lines.
func NewTailBuffer(maxLines int) *TailBuffer {
	if maxLines <= 0 {
		maxLines = 1
	}
	return &TailBuffer{max: maxLines}
}

// Write implements io.Writer. Carriage returns (ffmpeg progress updates) end a line too.
func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, b := range p {
		if b == '\n' || b == '\r' {
			t.flushLocked()
			continue
		}
		t.partial.WriteByte(b)
	}
	return len(p), nil
}

func (t *TailBuffer) flushLocked() {
	line := strings.TrimSpace(t.partial.String())
	t.partial.Reset()
	if line == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

// String returns the retained lines, including an unterminated last line.
func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	lines := t.lines
	if rest := strings.TrimSpace(t.partial.String()); rest != "" {
		lines = append(append([]string(nil), lines...), rest)
		if len(lines) > t.max {
			lines = lines[len(lines)-t.max:]
		}
	}
	return strings.Join(lines, "\n")
}
