// Package capture describes what the capture engine is asked to do:
// where segments go, how they are named and how the engine is invoked.
package capture

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// SegmentPrefix starts every segment file name.
const SegmentPrefix = "recording_"

// Layout maps time to the dated output tree: <base>/<YYYY>/<MM>/<DD>/recording_HHMMSS.<ext>.
type Layout struct {
	BaseDir   string
	Extension string

	nameRe *regexp.Regexp
}

// NewLayout creates a layout for the given base directory and file extension.
func NewLayout(baseDir, extension string) *Layout {
	ext := strings.TrimPrefix(extension, ".")
	return &Layout{
		BaseDir:   baseDir,
		Extension: ext,
		nameRe:    regexp.MustCompile(`^` + regexp.QuoteMeta(SegmentPrefix) + `\d{6}\.` + regexp.QuoteMeta(ext) + `$`),
	}
}

// DatedDir returns the directory holding segments created at t.
func (l *Layout) DatedDir(t time.Time) string {
	return filepath.Join(l.BaseDir, t.Format("2006"), t.Format("01"), t.Format("02"))
}

// FilenamePattern is the strftime file name handed to the engine.
func (l *Layout) FilenamePattern() string {
	return SegmentPrefix + "%H%M%S." + l.Extension
}

// OutputTemplate is the full strftime path handed to the engine. The date
// components are expanded by the engine per segment, so a session that runs
// past midnight writes into the next day's directory.
func (l *Layout) OutputTemplate() string {
	return filepath.Join(l.BaseDir, "%Y", "%m", "%d", l.FilenamePattern())
}

// MatchesSegment reports whether name looks like a segment this layout produces.
func (l *Layout) MatchesSegment(name string) bool {
	return l.nameRe.MatchString(name)
}

// DirsBetween returns the dated directories for every calendar day from start to end inclusive.
func (l *Layout) DirsBetween(start, end time.Time) []string {
	if end.Before(start) {
		end = start
	}
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, start.Location())

	var dirs []string
	for !day.After(last) {
		dirs = append(dirs, l.DatedDir(day))
		day = day.AddDate(0, 0, 1)
	}
	return dirs
}

// NextDay returns midnight following t, in t's location.
func NextDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}
