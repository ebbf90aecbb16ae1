// Package config resolves es3's global configuration: CLI flags, a config
// file, and environment variables, in that order of precedence (the
// environment only supplies credentials).
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

const (
	// MinSegmentSize is the floor for --segment-size: the minimum S3
	// multipart part size.
	MinSegmentSize = 6 * 1024 * 1024
	// MaxSegmentsInFlight is the cap for --segments-in-flight.
	MaxSegmentsInFlight = 200
	// DefaultSegmentsInFlight is used when --segments-in-flight is unset.
	DefaultSegmentsInFlight = 40
	// MaxPartNumber is the S3 multipart part-number ceiling.
	MaxPartNumber = 9999
)

// Config holds the resolved global configuration for a single run.
type Config struct {
	AccessKey string
	SecretKey string
	UseSSL    bool

	Compression bool
	ScratchDir  string

	ThreadNum         int
	ReaderThreads     int
	CompressorThreads int
	SegmentSize       int64
	SegmentsInFlight  int
	BandwidthLimit    int64

	Verbosity  int
	NoProgress bool
	NoStats    bool

	ConfigFile string
}

// Default returns the compiled-in configuration defaults: segment_size
// floor, thread counts scaled by CPU count.
func Default() *Config {
	cpu := runtime.NumCPU()
	return &Config{
		UseSSL:            true,
		Compression:       false,
		ScratchDir:        os.TempDir(),
		ThreadNum:         6*cpu + 40,
		ReaderThreads:     2*cpu + 2,
		CompressorThreads: cpu + 2,
		SegmentSize:       MinSegmentSize,
		SegmentsInFlight:  DefaultSegmentsInFlight,
		Verbosity:         1,
	}
}

// LoadFromEnv fills in credentials from the AWS-compatible environment
// fallbacks when the flags didn't already supply them.
func (c *Config) LoadFromEnv() {
	if c.AccessKey == "" {
		c.AccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if c.SecretKey == "" {
		c.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
}

// ResolveConfigFile resolves the config file path in priority order:
// --config flag, then ES3_CONFIG env, then ~/.es3cfg, then /conf/es3cfg.
// Returns "" if none exist.
func ResolveConfigFile(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if env := os.Getenv("ES3_CONFIG"); env != "" {
		return env
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, ".es3cfg")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := os.Stat("/conf/es3cfg"); err == nil {
		return "/conf/es3cfg"
	}
	return ""
}

// LoadFile parses a simple key=value config file into c. Credentials
// already present in c are kept; every other key found in the file
// overwrites c's value. The CLI applies its flags after LoadFile, so flags
// win over the file.
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		c.applyKV(key, value)
	}
	return scanner.Err()
}

func (c *Config) applyKV(key, value string) {
	switch key {
	case "access-key":
		if c.AccessKey == "" {
			c.AccessKey = value
		}
	case "secret-key":
		if c.SecretKey == "" {
			c.SecretKey = value
		}
	case "use-ssl":
		c.UseSSL = value == "true" || value == "1"
	case "compression":
		c.Compression = value == "true" || value == "1"
	case "scratch-dir":
		c.ScratchDir = value
	case "thread-num":
		if n, err := strconv.Atoi(value); err == nil {
			c.ThreadNum = n
		}
	case "reader-threads":
		if n, err := strconv.Atoi(value); err == nil {
			c.ReaderThreads = n
		}
	case "compressor-threads":
		if n, err := strconv.Atoi(value); err == nil {
			c.CompressorThreads = n
		}
	case "segment-size":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			c.SegmentSize = n
		}
	case "segments-in-flight":
		if n, err := strconv.Atoi(value); err == nil {
			c.SegmentsInFlight = n
		}
	case "bandwidth-limit":
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			c.BandwidthLimit = n
		}
	case "verbosity":
		if n, err := strconv.Atoi(value); err == nil {
			c.Verbosity = n
		}
	}
}

// Validate applies the clamps and bounds around operator preferences:
// minimums and maximums that keep the scheduler and transfer layers
// from being misconfigured into deadlock or pathological memory use.
func (c *Config) Validate() error {
	if c.SegmentSize < MinSegmentSize {
		c.SegmentSize = MinSegmentSize
	}
	if c.SegmentsInFlight > MaxSegmentsInFlight {
		c.SegmentsInFlight = MaxSegmentsInFlight
	}
	if c.SegmentsInFlight < 1 {
		return fmt.Errorf("invalid segments-in-flight: %d (must be >= 1)", c.SegmentsInFlight)
	}
	if c.ThreadNum < 1 {
		return fmt.Errorf("invalid thread-num: %d (must be >= 1)", c.ThreadNum)
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("missing credentials: set --access-key/--secret-key or AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY")
	}
	return nil
}
