package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ytplsync/dump"
	"ytplsync/youtube"
)

func newDumpCmd(a *app) *cobra.Command {
	var (
		playlistID  string
		output      string
		summaryOnly bool
	)
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write a full listing of a playlist (Watch Later by default)",
		Long: `Write every item of a playlist to a JSON file, including deleted, private
and otherwise unavailable videos, and print a summary.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			yc, err := a.youtubeClient(ctx, false)
			if err != nil {
				return err
			}

			report, err := dump.New(yc).Dump(ctx, playlistID)
			if err != nil {
				return err
			}
			report.Summary(a.out)

			if summaryOnly {
				return nil
			}
			if output == "" {
				output = dump.DefaultFileName(time.Now())
			}
			if err := report.WriteFile(output); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "\nSaved dump to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&playlistID, "playlist", youtube.WatchLaterID, "playlist ID to dump")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default watch_later_dump_YYYY-MM-DD.json)")
	cmd.Flags().BoolVar(&summaryOnly, "summary-only", false, "print the summary without writing a file")
	return cmd
}
