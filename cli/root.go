package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ytplsync",
		Short: "Keep a YouTube playlist filled with the uploads of a set of channels",
		Long: `ytplsync adds new uploads from a list of channels to one of your playlists,
skipping what the playlist already holds and staying inside the daily
YouTube Data API quota. Interrupted or quota-limited runs resume where
they stopped when run again.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.flags.config, "config", "", "config file (default ./ytplsync.yaml or ~/.config/ytplsync/ytplsync.yaml)")
	pf.StringVar(&a.flags.credentials, "credentials", "", "OAuth client secrets file")
	pf.StringVar(&a.flags.token, "token", "", "OAuth token file")
	pf.StringVar(&a.flags.store, "store", "", "JSON state file")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.IntVar(&a.flags.quota, "quota", 0, "daily Data API quota in units")

	cmd.AddCommand(
		newSyncCmd(a),
		newUpdateCmd(a),
		newDumpCmd(a),
		newCacheCmd(a),
		newQuotaCmd(a),
		newAuthCmd(a),
		newUploadsCmd(a),
	)
	return cmd
}
