package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"es3/internal/logging"
	"es3/remote"
	"es3/syncer"
)

var (
	syncDeleteMissing bool
	syncIncluded      []string
	syncExcluded      []string
	syncNonRecursive  bool
	syncPull          bool
)

var syncCmd = &cobra.Command{
	Use:   "sync <local-dir> <s3://bucket/prefix>",
	Short: "Recursively synchronize a local directory with a remote prefix",
	Long: `sync walks local-dir and the remote prefix in lockstep by filename and
schedules the uploads, downloads, and (with --delete) deletes needed to make
them match. By default local is authoritative (push); pass --pull to make
the remote side authoritative instead.

The whole walk-then-run cycle retries up to 3 times if the agenda reports
failed tasks; if work still remains after the third attempt, sync exits 4.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		localDir, remoteArg := args[0], args[1]
		if !remote.IsRemote(remoteArg) {
			return fmt.Errorf("second argument must be an s3:// path, got %q", remoteArg)
		}
		if info, err := os.Stat(localDir); err != nil {
			if os.IsNotExist(err) {
				return &missingLocalPathError{msg: fmt.Sprintf("local path %q does not exist", localDir)}
			}
			return err
		} else if !info.IsDir() {
			return &missingLocalPathError{msg: fmt.Sprintf("local path %q is not a directory", localDir)}
		}
		remotePath, err := remote.ParsePath(remoteArg)
		if err != nil {
			return err
		}

		ops, remotePath, err := newOps(remotePath)
		if err != nil {
			return err
		}

		direction := syncer.Push
		if syncPull {
			direction = syncer.Pull
		}
		sync := syncer.New(ops, newUploader(ops), newDownloader(ops),
			syncer.NewFilter(syncIncluded, syncExcluded), direction, syncDeleteMissing, cfg.Compression)
		sync.NonRecursive = syncNonRecursive

		const maxAttempts = 3
		var lastFailed int
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			ag := newAgenda()
			if err := sync.CreateSchedule(ag, localDir, remotePath); err != nil {
				return err
			}
			lastFailed = ag.Run()
			if lastFailed == 0 {
				break
			}
			logging.Warn("sync attempt %d/%d: %d tasks failed, retrying", attempt, maxAttempts, lastFailed)
		}

		if lastFailed > 0 {
			return &incompleteError{msg: fmt.Sprintf("sync incomplete after %d attempts: %d tasks still failing", maxAttempts, lastFailed)}
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncDeleteMissing, "delete", false, "delete destination files with no source counterpart")
	syncCmd.Flags().StringSliceVar(&syncIncluded, "include", nil, "only sync paths matching this glob (repeatable)")
	syncCmd.Flags().StringSliceVar(&syncExcluded, "exclude", nil, "never sync paths matching this glob (repeatable, dominates --include)")
	syncCmd.Flags().BoolVar(&syncNonRecursive, "non-recursive", false, "do not descend into subdirectories")
	syncCmd.Flags().BoolVar(&syncPull, "pull", false, "treat the remote prefix as authoritative instead of the local directory")
}
