package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"es3/internal/config"
	"es3/internal/logging"
)

var (
	cfg        *config.Config
	flagConfig string
)

var rootCmd = &cobra.Command{
	Use:     "es3 [command]",
	Short:   "Synchronize files with an S3-compatible object store",
	Version: "v1.0.0",
	Long: `es3 is a multi-threaded CLI for moving trees of files to and from an
S3-compatible object store: recursive sync with include/exclude filtering,
block-parallel gzip compression, multipart upload, and segment-parallel
download.

Examples:
  es3 sync ./build s3://my-bucket/releases/42
  es3 cp ./report.pdf s3://my-bucket/reports/2026/report.pdf
  es3 ls s3://my-bucket/releases/
  es3 rm s3://my-bucket/releases/41/`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Default()

		if path := config.ResolveConfigFile(flagConfig); path != "" {
			if err := cfg.LoadFile(path); err != nil {
				return fmt.Errorf("loading config file: %w", err)
			}
		}
		bindFlags(cmd)
		cfg.LoadFromEnv()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logging.Init(cfg.Verbosity)
		return nil
	},
}

// bindFlags copies the values of the flags the user set onto cfg. It runs
// after the config file has been applied, so flags win over both the file
// and the compiled-in defaults; the environment is consulted last and only
// fills credentials that are still empty (flags, then config file, then
// environment, then compiled defaults).
func bindFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if v, err := flags.GetString("access-key"); err == nil && v != "" {
		cfg.AccessKey = v
	}
	if v, err := flags.GetString("secret-key"); err == nil && v != "" {
		cfg.SecretKey = v
	}
	if flags.Changed("use-ssl") {
		cfg.UseSSL, _ = flags.GetBool("use-ssl")
	}
	if flags.Changed("compression") {
		cfg.Compression, _ = flags.GetBool("compression")
	}
	if v, err := flags.GetString("scratch-dir"); err == nil && v != "" {
		cfg.ScratchDir = v
	}
	if flags.Changed("thread-num") {
		cfg.ThreadNum, _ = flags.GetInt("thread-num")
	}
	if flags.Changed("reader-threads") {
		cfg.ReaderThreads, _ = flags.GetInt("reader-threads")
	}
	if flags.Changed("compressor-threads") {
		cfg.CompressorThreads, _ = flags.GetInt("compressor-threads")
	}
	if flags.Changed("segment-size") {
		cfg.SegmentSize, _ = flags.GetInt64("segment-size")
	}
	if flags.Changed("segments-in-flight") {
		cfg.SegmentsInFlight, _ = flags.GetInt("segments-in-flight")
	}
	if flags.Changed("bandwidth-limit") {
		cfg.BandwidthLimit, _ = flags.GetInt64("bandwidth-limit")
	}
	if flags.Changed("verbosity") {
		cfg.Verbosity, _ = flags.GetInt("verbosity")
	}
	if flags.Changed("no-progress") {
		cfg.NoProgress, _ = flags.GetBool("no-progress")
	}
	if flags.Changed("no-stats") {
		cfg.NoStats, _ = flags.GetBool("no-stats")
	}
}

func init() {
	defaults := config.Default()

	flags := rootCmd.PersistentFlags()
	flags.String("access-key", "", "S3 access key (env: AWS_ACCESS_KEY_ID)")
	flags.String("secret-key", "", "S3 secret key (env: AWS_SECRET_ACCESS_KEY)")
	flags.Bool("use-ssl", defaults.UseSSL, "use HTTPS for all requests")
	flags.Bool("compression", defaults.Compression, "gzip-compress objects on upload")
	flags.String("scratch-dir", defaults.ScratchDir, "directory for scratch/temp files")
	flags.Int("thread-num", defaults.ThreadNum, "unbound-class worker count")
	flags.Int("reader-threads", defaults.ReaderThreads, "io-class worker count")
	flags.Int("compressor-threads", defaults.CompressorThreads, "cpu-class worker count")
	flags.Int64("segment-size", defaults.SegmentSize, "transfer segment size in bytes")
	flags.Int("segments-in-flight", defaults.SegmentsInFlight, "max segments held in memory at once")
	flags.Int64("bandwidth-limit", defaults.BandwidthLimit, "cap transfer throughput in bytes/sec (0 = unlimited)")
	flags.Int("verbosity", defaults.Verbosity, "log verbosity (0=error .. 3=debug)")
	flags.Bool("no-progress", false, "suppress the task-count progress widget")
	flags.Bool("no-stats", false, "suppress the end-of-run stats epilogue")
	flags.StringVar(&flagConfig, "config", "", "path to config file (env: ES3_CONFIG)")

	rootCmd.AddCommand(syncCmd, cpCmd, lsCmd, lsrCmd, rmCmd, massRmCmd, duCmd, testCmd, touchCmd, catCmd, publishCmd)
}

// Execute runs the root command; its return value is the process exit
// code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitCodeFor(err)
	}
	return 0
}
