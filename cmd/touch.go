package cmd

import (
	"github.com/spf13/cobra"

	"es3/agenda"
	"es3/remote"
	"es3/transfer"
)

var touchCmd = &cobra.Command{
	Use:   "touch <s3://bucket/key>",
	Short: "Create a zero-length marker object carrying only metadata",
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

		uploader := newUploader(ops)
		return agenda.RunOne(agendaLimits(), int(cfg.SegmentSize), cfg.SegmentsInFlight, cfg.NoProgress, cfg.NoStats, cfg.BandwidthLimit,
			"touch "+path.String(),
			func(ag *agenda.Agenda) error {
				return uploader.Upload(ag, "", path, transfer.Options{JustTouch: true})
			})
	},
}
