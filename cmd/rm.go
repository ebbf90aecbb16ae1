package cmd

import (
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"

	"es3/internal/logging"
	"es3/remote"
)

var rmCmd = &cobra.Command{
	Use:   "rm <s3://bucket/key-or-prefix>",
	Short: "Delete a single object, or every object under a prefix",
	Long: `rm deletes one object. If the path ends in "/" it names a prefix
instead of a single key, and every object found beneath it is deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := remote.ParsePath(args[0])
		if err != nil {
			return err
		}
		ops, path, err := newOps(path)
		if err != nil {
			return err
		}

		if !isPrefix(path) {
			return ops.Delete(path)
		}

		var failed atomic.Int64
		err = walkRemote(ops, path, func(f *remote.File) error {
			if derr := ops.Delete(f.Absolute); derr != nil {
				logging.Warn("rm %s: %v", f.Absolute, derr)
				failed.Add(1)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if n := failed.Load(); n > 0 {
			return &incompleteError{msg: fmt.Sprintf("rm left %d objects undeleted", n)}
		}
		return nil
	},
}
