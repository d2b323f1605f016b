package expense

import (
	"fmt"
	"os"
	"path/filepath"
)

// Archive keeps local copies of uploaded PDFs. A failed archive write never
// fails the job; the worker only logs it.
type Archive interface {
	// Save stores a file and returns the path/filename it was stored under.
	Save(filename string, data []byte) (string, error)
}

// LocalArchive implements Archive on the local filesystem.
type LocalArchive struct {
	basePath string
}

// NewLocalArchive creates the archive directory if it doesn't exist.
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return &LocalArchive{basePath: basePath}, nil
}

// Save writes a file into the archive directory.
func (l *LocalArchive) Save(filename string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return path, nil
}
