// Package ratelimit provides an optional token-bucket bandwidth limiter
// shared across a run's transfer workers, wired in at the segment
// read/write loops of the uploader and downloader when --bandwidth-limit
// is set.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Limiter throttles byte consumption to a target rate shared by however
// many threads are currently registered with it.
type Limiter struct {
	mu         sync.Mutex
	rate       int64
	bucket     int64
	maxBucket  int64
	lastUpdate time.Time

	threadMu sync.RWMutex
	threads  int32
}

// New creates a limiter capped at bytesPerSecond. A rate of zero disables
// limiting (Wait becomes a no-op).
func New(bytesPerSecond int64) *Limiter {
	return &Limiter{
		rate:       bytesPerSecond,
		bucket:     bytesPerSecond,
		maxBucket:  bytesPerSecond,
		lastUpdate: time.Now(),
	}
}

// Wait blocks until n bytes may be consumed under the current rate.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	if l.rate <= 0 {
		return nil
	}

	l.mu.Lock()
	now := time.Now()
	elapsed := now.Sub(l.lastUpdate)
	l.lastUpdate = now

	effective := l.effectiveRate()
	l.bucket += int64(elapsed.Seconds() * float64(effective))
	if l.bucket > l.maxBucket {
		l.bucket = l.maxBucket
	}

	needed := int64(n)
	if l.bucket >= needed {
		l.bucket -= needed
		l.mu.Unlock()
		return nil
	}

	deficit := needed - l.bucket
	wait := time.Duration(float64(deficit) / float64(effective) * float64(time.Second))
	l.bucket = 0
	l.mu.Unlock()

	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) effectiveRate() int64 {
	l.threadMu.RLock()
	n := l.threads
	l.threadMu.RUnlock()
	if n <= 1 {
		return l.rate
	}
	minPerThread := int64(1024)
	if l.rate <= minPerThread*int64(n) {
		return l.rate / int64(n)
	}
	return l.rate
}

// SetRate updates the limit in place.
func (l *Limiter) SetRate(bytesPerSecond int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rate = bytesPerSecond
	l.maxBucket = bytesPerSecond
	if l.bucket > l.maxBucket {
		l.bucket = l.maxBucket
	}
}

// RegisterThread and UnregisterThread track how many concurrent segment
// workers are sharing this limiter, so each gets a fair slice of the rate.
func (l *Limiter) RegisterThread() {
	l.threadMu.Lock()
	l.threads++
	l.threadMu.Unlock()
}

func (l *Limiter) UnregisterThread() {
	l.threadMu.Lock()
	if l.threads > 0 {
		l.threads--
	}
	l.threadMu.Unlock()
}

// Parse parses human-readable rate strings such as "5M" or "1.5GB" into a
// byte-per-second count.
func Parse(rateStr string) (int64, error) {
	rateStr = strings.TrimSpace(rateStr)
	if rateStr == "" {
		return 0, nil
	}
	if val, err := strconv.ParseInt(rateStr, 10, 64); err == nil {
		return val, nil
	}
	if len(rateStr) < 2 {
		return 0, fmt.Errorf("invalid rate format: %s", rateStr)
	}

	upper := strings.ToUpper(rateStr)
	var numStr, suffix string
	switch {
	case strings.HasSuffix(upper, "KB"), strings.HasSuffix(upper, "MB"),
		strings.HasSuffix(upper, "GB"), strings.HasSuffix(upper, "TB"):
		numStr, suffix = rateStr[:len(rateStr)-2], upper[len(upper)-2:]
	default:
		numStr, suffix = rateStr[:len(rateStr)-1], upper[len(upper)-1:]
	}

	base, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value in rate: %s", numStr)
	}
	if base < 0 {
		return 0, fmt.Errorf("rate cannot be negative: %f", base)
	}

	var mult int64
	switch suffix {
	case "B":
		mult = 1
	case "K", "KB":
		mult = 1024
	case "M", "MB":
		mult = 1024 * 1024
	case "G", "GB":
		mult = 1024 * 1024 * 1024
	case "T", "TB":
		mult = 1024 * 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unsupported rate suffix: %s", suffix)
	}

	return int64(base * float64(mult)), nil
}
