//go:build linux

package fsutil

import (
	"os"

	"es3/internal/es3err"

	"golang.org/x/sys/unix"
)

// preallocate uses fallocate on Linux, matching downloader.cpp's
// fallocate64(fl.get(), 0, 0, dc->remote_size_) branch.
func preallocate(f *os.File, size int64) error {
	if size == 0 {
		return nil
	}
	if err := unix.Fallocate(int(f.Fd()), 0, 0, size); err != nil {
		// Fall back to a plain truncate, matching the original's own
		// fallback when contiguous allocation fails.
		if terr := f.Truncate(size); terr != nil {
			return es3err.Wrap(es3err.LevelFatal, terr, "truncate after fallocate failure")
		}
	}
	return nil
}
