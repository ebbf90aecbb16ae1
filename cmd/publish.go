package cmd

import (
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"

	"es3/internal/logging"
	"es3/remote"
)

var publishCmd = &cobra.Command{
	Use:   "publish <s3://bucket/key-or-prefix>",
	Short: `Grant the canned "public-read" ACL to an object, or every object under a prefix`,
	Args:  cobra.ExactArgs(1),
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
			return ops.SetACL(path, "public-read")
		}

		var failed atomic.Int64
		err = walkRemote(ops, path, func(f *remote.File) error {
			if aclErr := ops.SetACL(f.Absolute, "public-read"); aclErr != nil {
				logging.Warn("publish %s: %v", f.Absolute, aclErr)
				failed.Add(1)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if n := failed.Load(); n > 0 {
			return &incompleteError{msg: fmt.Sprintf("publish left %d objects unset", n)}
		}
		return nil
	},
}
