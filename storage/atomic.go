package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// AtomicWriter writes to a temp file next to the target and renames it into
// place on Commit, so readers never see a partial file.
type AtomicWriter struct {
	path    string
	tmpPath string
	file    *os.File
	perm    fs.FileMode
}

// NewAtomicWriter creates a writer for atomic file updates with mode 0644.
func NewAtomicWriter(path string) (*AtomicWriter, error) {
	return NewAtomicWriterMode(path, 0o644)
}

// NewAtomicWriterMode is NewAtomicWriter with an explicit final file mode.
func NewAtomicWriterMode(path string, perm fs.FileMode) (*AtomicWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".ytplsync-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	return &AtomicWriter{
		path:    path,
		tmpPath: tmpFile.Name(),
		file:    tmpFile,
		perm:    perm,
	}, nil
}

// Write writes data to the temporary file.
func (w *AtomicWriter) Write(p []byte) (n int, err error) {
	return w.file.Write(p)
}

// Commit fsyncs the temp file and renames it over the target.
func (w *AtomicWriter) Commit() error {
	if err := w.file.Chmod(w.perm); err != nil {
		w.Abort()
		return fmt.Errorf("chmod: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		w.Abort()
		return fmt.Errorf("sync: %w", err)
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		os.Remove(w.tmpPath) // Best effort cleanup
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Abort discards the temporary file without committing.
func (w *AtomicWriter) Abort() error {
	w.file.Close()
	return os.Remove(w.tmpPath)
}

// WriteFileAtomic replaces path with data in one rename.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	w, err := NewAtomicWriterMode(path, perm)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Abort()
		return fmt.Errorf("write: %w", err)
	}
	return w.Commit()
}
