package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"es3/remote"
)

var testCmd = &cobra.Command{
	Use:   "test <s3://bucket>",
	Short: "Check connectivity and credentials against a bucket",
	Long: `test resolves the bucket's region and performs a shallow listing of
its root, the same two calls every other command makes before doing real
work, to confirm credentials and network access are good.`,
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
		if _, err := ops.ListShallow(path); err != nil {
			return err
		}
		fmt.Printf("ok: %s reachable in region %s\n", path.Bucket, path.Zone)
		return nil
	},
}
