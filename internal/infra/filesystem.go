package infra

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/eliteGoblin/rtsprec/internal/domain"
)

// FileSystemManagerImpl implements domain.FileSystemManager.
type FileSystemManagerImpl struct {
	dirMode os.FileMode
}

// NewFileSystemManager creates a new filesystem manager.
func NewFileSystemManager() domain.FileSystemManager {
	return &FileSystemManagerImpl{dirMode: 0o755}
}

// EnsureDir creates a directory and its parents with standard permissions.
func (fm *FileSystemManagerImpl) EnsureDir(path string) error {
	return os.MkdirAll(path, fm.dirMode)
}

// ListSegments returns regular files in dir whose name satisfies match.
// A missing directory means there is nothing to list.
func (fm *FileSystemManagerImpl) ListSegments(dir string, match func(name string) bool) ([]domain.Segment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	segments := make([]domain.Segment, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !match(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // Removed between ReadDir and Info
		}
		segments = append(segments, domain.Segment{
			Path:    filepath.Join(dir, entry.Name()),
			Name:    entry.Name(),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}
	return segments, nil
}

// Remove deletes a single file.
func (fm *FileSystemManagerImpl) Remove(path string) error {
	return os.Remove(path)
}

// Ensure FileSystemManagerImpl implements domain.FileSystemManager.
var _ domain.FileSystemManager = (*FileSystemManagerImpl)(nil)
