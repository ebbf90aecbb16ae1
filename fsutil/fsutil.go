// Package fsutil provides the small set of filesystem primitives shared
// by the uploader, downloader, and compressor: directory creation,
// atomic rename, and platform preallocation of the temp file used by
// downloads before they're renamed into place.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"es3/internal/es3err"

	"github.com/google/uuid"
)

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// AtomicRename performs the rename-into-place step of the downloader
// and the uploader's corresponding cleanup.
func AtomicRename(oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, fmt.Sprintf("rename %s to %s", oldPath, newPath))
	}
	return nil
}

// ScratchName builds a scratch-file name in the "scratchy-XXXX-XXXX..."
// format, using a random suffix rather than the original's
// boost::filesystem::unique_path %%%% pattern generator.
func ScratchName(prefix string) string {
	id := uuid.New().String()
	return fmt.Sprintf("%s-%s", prefix, id)
}

// CreatePreallocated creates (or truncates) path and preallocates size
// bytes of space, matching the platform allocate-then-truncate idiom of
// downloader.cpp: fallocate where available, a plain Truncate elsewhere.
func CreatePreallocated(path string, size int64) (err error) {
	_ = os.Remove(path) // clear stale file, matching the original's unlink-first step
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "create "+path)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = es3err.Wrap(es3err.LevelFatal, cerr, "close "+path)
		}
	}()

	if err := preallocate(f, size); err != nil {
		return err
	}
	return nil
}
