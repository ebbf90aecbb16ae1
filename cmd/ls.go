package cmd

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"es3/remote"
)

var lsCmd = &cobra.Command{
	Use:   "ls <s3://bucket/prefix>",
	Short: "List the immediate children of a remote prefix",
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

		dir, err := ops.ListShallow(path)
		if err != nil {
			return err
		}

		subNames := make([]string, 0, len(dir.Subdirs))
		for name := range dir.Subdirs {
			subNames = append(subNames, name)
		}
		sort.Strings(subNames)
		for _, name := range subNames {
			fmt.Printf("%13s  %s/\n", "PRE", name)
		}

		fileNames := make([]string, 0, len(dir.Files))
		for name := range dir.Files {
			fileNames = append(fileNames, name)
		}
		sort.Strings(fileNames)
		for _, name := range fileNames {
			f := dir.Files[name]
			fmt.Printf("%13s  %s  %s\n", humanize.Bytes(f.Size), f.MtimeStr, name)
		}
		return nil
	},
}
