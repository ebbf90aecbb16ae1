package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"es3/internal/es3err"
	"es3/remote"
)

var catCmd = &cobra.Command{
	Use:   "cat <s3://bucket/key>",
	Short: "Write a remote object's content to stdout",
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

		var body string
		var lastErr error
		for attempt := 0; attempt < 6; attempt++ {
			body, lastErr = ops.ReadFully("GET", path, "", nil)
			if lastErr == nil {
				break
			}
			e, ok := lastErr.(*es3err.Error)
			if !ok || !e.Retryable() {
				break
			}
			time.Sleep(time.Second)
		}
		if lastErr != nil {
			return lastErr
		}

		_, err = fmt.Fprint(os.Stdout, body)
		return err
	},
}
