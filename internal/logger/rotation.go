package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const rotateStamp = "20060102-150405"

// RotatingWriter appends to a single log file and rotates it out once it
// grows past the configured size. Rotated files carry a timestamp suffix,
// are optionally gzip-compressed, and are pruned once older than maxAge
// days. Safe for concurrent writers.
type RotatingWriter struct {
	mu       sync.Mutex
	path     string
	limit    int64 // bytes
	maxAge   int   // days, <= 0 disables pruning
	compress bool
	f        *os.File
	size     int64
}

// NewRotatingWriter opens (or creates) the log file at path, creating
// parent directories as needed, and prunes any expired rotations.
func NewRotatingWriter(path string, maxSizeMB, maxAge int, compress bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("log file: %w", err)
	}

	w := &RotatingWriter{
		path:     path,
		limit:    int64(maxSizeMB) * 1024 * 1024,
		maxAge:   maxAge,
		compress: compress,
		f:        f,
		size:     info.Size(),
	}
	w.prune()

	return w, nil
}

// Write appends p, rotating first if the write would push the file past
// the size limit.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the current log file. Subsequent closes are no-ops.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// rotate renames the current file aside and starts a fresh one. Called
// with w.mu held.
func (w *RotatingWriter) rotate() error {
	if err := w.f.Close(); err != nil {
		return err
	}

	rotated := w.path + "." + time.Now().Format(rotateStamp)
	if err := os.Rename(w.path, rotated); err != nil {
		return err
	}
	if w.compress {
		if err := gzipFile(rotated); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	w.f = f
	w.size = 0

	w.prune()
	return nil
}

// prune removes rotated files older than maxAge days.
func (w *RotatingWriter) prune() {
	if w.maxAge <= 0 {
		return
	}

	matches, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -w.maxAge)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(m)
		}
	}
}

// gzipFile compresses path to path.gz and removes the original.
func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		dst.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}
