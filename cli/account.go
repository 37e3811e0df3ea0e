package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ytplsync/quota"
	"ytplsync/youtube"
)

func newQuotaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show today's Data API quota usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := a.tracker
			fmt.Fprintf(a.out, "Quota day:  %s (resets %s)\n", t.Day(), quota.NextReset(time.Now()).Local().Format("2006-01-02 15:04 MST"))
			fmt.Fprintf(a.out, "Used:       %d of %d units\n", t.Used(), t.Limit())
			fmt.Fprintf(a.out, "Available:  %d units (~%d playlist inserts)\n", t.Remaining(), t.InsertsAffordable())
			return nil
		},
	}
}

func newAuthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to your YouTube account and store the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			auth := a.authenticator()
			cfg, err := auth.OAuthConfig()
			if err != nil {
				return err
			}
			tok, err := auth.Authorize(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if err := auth.SaveToken(tok); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Token saved to %s\n", auth.TokenFile)
			return nil
		},
	}
}

func newUploadsCmd(a *app) *cobra.Command {
	var (
		since      string
		maxResults int
	)
	cmd := &cobra.Command{
		Use:   "uploads CHANNEL",
		Short: "List a channel's uploads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			after, err := parseDate(since)
			if err != nil {
				return err
			}
			yc, err := a.youtubeClient(ctx, true)
			if err != nil {
				return err
			}
			id, err := youtube.NewChannelResolver(yc, a.store).Resolve(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(a.errw, "Fetching uploads of %s...\n", id)
			videos, err := youtube.NewAPILister(yc).ListVideos(ctx, id, &youtube.ListOptions{Since: after, MaxResults: maxResults})
			if err != nil {
				return err
			}
			if len(videos) == 0 {
				fmt.Fprintln(a.out, "No videos found.")
				return nil
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "VIDEO ID\tPUBLISHED\tTITLE")
			for _, v := range videos {
				fmt.Fprintf(w, "%s\t%s\t%s\n", v.ID, v.Published.Local().Format(time.DateOnly), truncate(v.Title, 60))
			}
			w.Flush()
			fmt.Fprintf(a.errw, "\nTotal: %d videos\n", len(videos))
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "only videos published on or after this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&maxResults, "max", 0, "maximum videos to list (0 = all)")
	return cmd
}
