//go:build !linux

package fsutil

import (
	"os"

	"es3/internal/es3err"
)

// preallocate falls back to a plain truncate on platforms without a
// fallocate syscall, matching downloader.cpp's F_PREALLOCATE-failure path.
func preallocate(f *os.File, size int64) error {
	if err := f.Truncate(size); err != nil {
		return es3err.Wrap(es3err.LevelFatal, err, "truncate preallocation")
	}
	return nil
}
