package cmd

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"es3/remote"
)

var lsrCmd = &cobra.Command{
	Use:   "lsr <s3://bucket/prefix>",
	Short: "Recursively list every object under a remote prefix",
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

		var mu sync.Mutex
		return walkRemote(ops, path, func(f *remote.File) error {
			mu.Lock()
			fmt.Printf("%13s  %s  %s\n", humanize.Bytes(f.Size), f.MtimeStr, f.Absolute.String())
			mu.Unlock()
			return nil
		})
	},
}
