package transfer

import (
	"strconv"
	"strings"
)

func formatInt(n int64) string   { return strconv.FormatInt(n, 10) }
func formatUint(n uint64) string { return strconv.FormatUint(n, 10) }
func formatOctal(n uint32) string { return strconv.FormatUint(uint64(n), 8) }

// sanitizeScratchName turns a remote key (which may contain "/") into a
// flat scratch filename.
func sanitizeScratchName(path string) string {
	return strings.ReplaceAll(path, "/", "_")
}
