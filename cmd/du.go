package cmd

import (
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"es3/remote"
)

var duCmd = &cobra.Command{
	Use:   "du <s3://bucket/prefix>",
	Short: "Recursively sum the size of every object under a remote prefix",
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

		var total atomic.Uint64
		var count atomic.Int64
		err = walkRemote(ops, path, func(f *remote.File) error {
			total.Add(f.Size)
			count.Add(1)
			return nil
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s\t%d objects\t%s\n", humanize.Bytes(total.Load()), count.Load(), path.String())
		return nil
	},
}
