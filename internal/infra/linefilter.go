package infra

import (
	"io"
	"sync"
)

const maxPendingLine = 64 * 1024

// LineFilter passes complete lines through filter before writing them to w.
// Carriage returns end a line too. Call Flush once the source is done to
// emit an unterminated last line.
type LineFilter struct {
	mu      sync.Mutex
	w       io.Writer
	filter  func(string) string
	pending []byte
}

// NewLineFilter wraps w.
func NewLineFilter(w io.Writer, filter func(string) string) *LineFilter {
	return &LineFilter{w: w, filter: filter}
}

// Write implements io.Writer.
func (f *LineFilter) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, b := range p {
		if b == '\n' || b == '\r' {
			if err := f.emitLocked(); err != nil {
				return 0, err
			}
			continue
		}
		f.pending = append(f.pending, b)
		if len(f.pending) >= maxPendingLine {
			if err := f.emitLocked(); err != nil {
				return 0, err
			}
		}
	}
	return len(p), nil
}

// Flush writes any unterminated line.
func (f *LineFilter) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.emitLocked()
}

func (f *LineFilter) emitLocked() error {
	if len(f.pending) == 0 {
		return nil
	}
	line := f.filter(string(f.pending))
	f.pending = f.pending[:0]
	_, err := io.WriteString(f.w, line+"\n")
	return err
}
