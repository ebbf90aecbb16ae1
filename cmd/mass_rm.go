package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"es3/internal/es3err"
	"es3/internal/logging"
	"es3/remote"
)

var massRmCmd = &cobra.Command{
	Use:   "mass_rm",
	Short: "Delete object paths read one per line from stdin",
	Long: `mass_rm reads "s3://bucket/key" lines from stdin and deletes each,
trying a failing delete up to 3 times before giving up on that one line
and moving to the next. Exits 4 if any line could not be deleted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var failed int
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := deleteOneRetrying(line); err != nil {
				logging.Error("mass_rm %s: %v", line, err)
				failed++
			}
		}
		if err := scanner.Err(); err != nil {
			return es3err.Wrap(es3err.LevelFatal, err, "read stdin")
		}
		if failed > 0 {
			return &incompleteError{msg: fmt.Sprintf("mass_rm failed to delete %d paths", failed)}
		}
		return nil
	},
}

func deleteOneRetrying(arg string) error {
	path, err := remote.ParsePath(arg)
	if err != nil {
		return err
	}
	ops, path, err := newOps(path)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		lastErr = ops.Delete(path)
		if lastErr == nil {
			return nil
		}
		e, ok := lastErr.(*es3err.Error)
		if !ok || !e.Retryable() {
			break
		}
		time.Sleep(time.Second)
	}
	return lastErr
}
