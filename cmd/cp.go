package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"es3/agenda"
	"es3/remote"
	"es3/transfer"
)

var cpCmd = &cobra.Command{
	Use:   "cp <src> <dst>",
	Short: "Copy a single file to or from the remote store",
	Long: `cp copies one file, in either direction: local-to-remote (upload) when
dst is an s3:// path, or remote-to-local (download) when src is.

Examples:
  es3 cp ./report.pdf s3://my-bucket/reports/report.pdf
  es3 cp s3://my-bucket/reports/report.pdf ./report.pdf`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, dst := args[0], args[1]
		srcRemote, dstRemote := remote.IsRemote(src), remote.IsRemote(dst)

		switch {
		case !srcRemote && dstRemote:
			remotePath, err := remote.ParsePath(dst)
			if err != nil {
				return err
			}
			ops, remotePath, err := newOps(remotePath)
			if err != nil {
				return err
			}
			uploader := newUploader(ops)
			return agenda.RunOne(agendaLimits(), int(cfg.SegmentSize), cfg.SegmentsInFlight, cfg.NoProgress, cfg.NoStats, cfg.BandwidthLimit,
				"cp "+src+" "+remotePath.String(),
				func(ag *agenda.Agenda) error {
					return uploader.Upload(ag, src, remotePath, transfer.Options{Compress: cfg.Compression})
				})

		case srcRemote && !dstRemote:
			remotePath, err := remote.ParsePath(src)
			if err != nil {
				return err
			}
			ops, remotePath, err := newOps(remotePath)
			if err != nil {
				return err
			}
			downloader := newDownloader(ops)
			return agenda.RunOne(agendaLimits(), int(cfg.SegmentSize), cfg.SegmentsInFlight, cfg.NoProgress, cfg.NoStats, cfg.BandwidthLimit,
				"cp "+remotePath.String()+" "+dst,
				func(ag *agenda.Agenda) error {
					return downloader.Download(ag, remotePath, dst)
				})

		case srcRemote && dstRemote:
			return fmt.Errorf("remote-to-remote copy is not supported; download then upload")
		default:
			return fmt.Errorf("at least one of src or dst must be an s3:// path")
		}
	},
}
