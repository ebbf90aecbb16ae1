package agenda

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
)

// progressInterval is the redraw period for the textual task-counter
// widget. This is a distinct mechanism from the per-file byte progress
// bar in package progressbar; the agenda only ever counts tasks, never
// bytes.
const progressInterval = 500 * time.Millisecond

// drawProgressLoop redraws the widget on a ticker until done is closed.
func (a *Agenda) drawProgressLoop(done <-chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.drawProgressWidget()
		case <-done:
			return
		}
	}
}

// drawProgressWidget prints "Tasks: [done/submitted]" plus an optional
// " Failed tasks: N" suffix, overwriting the previous line with \r.
func (a *Agenda) drawProgressWidget() {
	a.statsMu.Lock()
	done, submitted, failed := a.numDone, a.numSubmitted, a.numFailed
	a.statsMu.Unlock()

	line := fmt.Sprintf("Tasks: [%d/%d]", done, submitted)
	if failed > 0 {
		line += fmt.Sprintf(" Failed tasks: %d", failed)
	}
	fmt.Fprintf(os.Stderr, "\r%s", line)
}

// drawStats prints the end-of-run epilogue: elapsed time, per-counter
// totals, and B/sec averages.
func (a *Agenda) drawStats() {
	elapsed := time.Since(a.startTime)
	secs := elapsed.Seconds()
	if secs <= 0 {
		secs = 1
	}

	a.statsMu.Lock()
	names := make([]string, 0, len(a.stats))
	for name := range a.stats {
		names = append(names, name)
	}
	sort.Strings(names)
	vals := make(map[string]uint64, len(a.stats))
	for _, name := range names {
		vals[name] = a.stats[name]
	}
	done, submitted, failed := a.numDone, a.numSubmitted, a.numFailed
	a.statsMu.Unlock()

	fmt.Fprintf(os.Stderr, "Elapsed: %.1fs\n", secs)
	fmt.Fprintf(os.Stderr, "Tasks completed: %d/%d (failed: %d)\n", done, submitted, failed)
	for _, name := range names {
		v := vals[name]
		rate := float64(v) / secs
		fmt.Fprintf(os.Stderr, "  %s: %s (%s/s)\n", name, humanize.Bytes(v), humanize.Bytes(uint64(rate)))
	}
}
