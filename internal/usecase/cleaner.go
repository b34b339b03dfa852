// Package usecase contains application business logic.
package usecase

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/rtsprec/internal/capture"
	"github.com/eliteGoblin/rtsprec/internal/domain"
)

// Snapshot is the set of segment paths present before a session started.
type Snapshot map[string]struct{}

// Contains reports whether path existed at snapshot time.
func (s Snapshot) Contains(path string) bool {
	_, ok := s[path]
	return ok
}

// CleanResult reports what one cleanup pass did.
type CleanResult struct {
	SessionID    string
	Removed      []string
	SkippedPaths []string // Permission denied
	Errors       []error
	DurationMs   int64
}

// SegmentCleaner removes segments written by a failed session.
type SegmentCleaner struct {
	fsManager domain.FileSystemManager
	layout    *capture.Layout
	logger    *zap.Logger
}

// NewSegmentCleaner creates a cleaner for segments laid out by layout.
func NewSegmentCleaner(fs domain.FileSystemManager, layout *capture.Layout, logger *zap.Logger) *SegmentCleaner {
	return &SegmentCleaner{
		fsManager: fs,
		layout:    layout,
		logger:    logger,
	}
}

// Snapshot lists the segments already present in dirs.
func (c *SegmentCleaner) Snapshot(dirs []string) Snapshot {
	snap := make(Snapshot)
	for _, dir := range dirs {
		segments, err := c.fsManager.ListSegments(dir, c.layout.MatchesSegment)
		if err != nil {
			c.logger.Warn("failed to snapshot segments",
				zap.String("dir", dir),
				zap.Error(err))
			continue
		}
		for _, seg := range segments {
			snap[seg.Path] = struct{}{}
		}
	}
	return snap
}

// Clean deletes the segments session produced, in every dated directory
// between its start and end. A segment belongs to the session when it was
// absent from before and was modified at or after the session start.
// The caller must have received the engine's exit before calling Clean.
func (c *SegmentCleaner) Clean(session *domain.Session, before Snapshot) CleanResult {
	start := time.Now()
	result := CleanResult{
		SessionID:    session.ID,
		Removed:      make([]string, 0),
		SkippedPaths: make([]string, 0),
		Errors:       make([]error, 0),
	}

	end := session.EndedAt
	if end.IsZero() {
		end = start
	}
	// Filesystem timestamps may be coarser than the recorded start.
	threshold := session.StartedAt.Truncate(time.Second)

	for _, dir := range c.layout.DirsBetween(session.StartedAt, end) {
		segments, err := c.fsManager.ListSegments(dir, c.layout.MatchesSegment)
		if err != nil {
			c.logger.Warn("failed to list segments",
				zap.String("dir", dir),
				zap.Error(err))
			result.Errors = append(result.Errors, err)
			continue
		}

		for _, seg := range segments {
			if before.Contains(seg.Path) || seg.ModTime.Before(threshold) {
				continue
			}

			if err := c.fsManager.Remove(seg.Path); err != nil {
				switch {
				case os.IsNotExist(err):
					// Already gone
				case os.IsPermission(err):
					c.logger.Warn("cannot delete partial segment (permission denied)",
						zap.String("session", session.ID),
						zap.String("path", seg.Path))
					result.SkippedPaths = append(result.SkippedPaths, seg.Path)
				default:
					c.logger.Warn("failed to delete partial segment",
						zap.String("path", seg.Path),
						zap.Error(err))
					result.Errors = append(result.Errors, err)
				}
				continue
			}

			c.logger.Info("deleted partial segment",
				zap.String("session", session.ID),
				zap.String("path", seg.Path),
				zap.Int64("bytes", seg.Size))
			result.Removed = append(result.Removed, seg.Path)
		}
	}

	result.DurationMs = time.Since(start).Milliseconds()
	return result
}
