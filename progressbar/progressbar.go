// Package progressbar renders the per-transfer byte progress bar shown
// by the cp/sync commands for a single file, using pb/v3 styling. This
// is distinct from the agenda's own textual "Tasks: [done/submitted]"
// widget (see package agenda), which tracks task counts across an
// entire run rather than bytes within one file.
package progressbar

import (
	"fmt"
	"time"

	"github.com/cheggaaa/pb/v3"
)

// Bar wraps a pb.ProgressBar scoped to one file transfer.
type Bar struct {
	bar   *pb.ProgressBar
	quiet bool
}

// New creates a byte-count progress bar for a transfer of the given total
// size. If quiet is true, all operations are no-ops.
func New(total int64, label string, quiet bool) *Bar {
	if quiet {
		return &Bar{quiet: true}
	}
	tmpl := `{{ string . "label" }} {{counters . }} {{ bar . }} {{percent . }} {{speed . }}`
	bar := pb.ProgressBarTemplate(tmpl).Start64(total)
	bar.Set("label", label)
	bar.SetRefreshRate(200 * time.Millisecond)
	return &Bar{bar: bar}
}

// Add advances the bar by n bytes.
func (b *Bar) Add(n int) {
	if b.quiet || b.bar == nil {
		return
	}
	b.bar.Add(n)
}

// Finish completes the bar and prints nothing further.
func (b *Bar) Finish() {
	if b.quiet || b.bar == nil {
		return
	}
	b.bar.Finish()
}

// FormatBytes renders a byte count with binary (1024-based) units, e.g.
// "12.3 MiB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
