package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"ytplsync/storage"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or reset the local state",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show channel mappings, cached uploads and playlist history",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return showCache(cmd, a)
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Drop channel mappings and cached uploads",
			Long:  "Drop channel mappings and cached uploads. Playlist history and the quota ledger are kept.",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.store.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Cache cleared.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear-channels",
			Short: "Drop channel name to ID mappings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.store.ClearChannelMappings(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Channel mappings cleared.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "repopulate-channels",
			Short: "Rebuild channel mappings from cached uploads",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := repopulateChannels(cmd, a.store)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Restored %d channel mappings.\n", n)
				return nil
			},
		},
	)
	return cmd
}

func repopulateChannels(cmd *cobra.Command, store *storage.JSONStore) (int, error) {
	ctx := cmd.Context()
	entries, err := store.ListChannelVideos(ctx)
	if err != nil {
		return 0, err
	}
	mappings := storage.MappingsFromVideoCache(entries)
	for title, id := range mappings {
		if err := store.PutChannelID(ctx, title, id); err != nil {
			return 0, err
		}
	}
	return len(mappings), nil
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetAutoWrapText(false)
	t.SetHeader(header)
	return t
}

func showCache(cmd *cobra.Command, a *app) error {
	ctx := cmd.Context()
	fmt.Fprintf(a.out, "Store: %s\n", a.store.Path())

	mappings, err := a.store.ChannelMappings(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "\nChannel mappings (%d):\n", len(mappings))
	if len(mappings) > 0 {
		keys := make([]string, 0, len(mappings))
		for k := range mappings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		t := newTable(a.out, "Input", "Channel ID")
		for _, k := range keys {
			t.Append([]string{truncate(k, 50), mappings[k]})
		}
		t.Render()
	}

	entries, err := a.store.ListChannelVideos(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "\nCached uploads (%d channels):\n", len(entries))
	if len(entries) > 0 {
		t := newTable(a.out, "Channel ID", "Title", "Videos", "Source", "Fetched")
		for _, e := range entries {
			t.Append([]string{
				e.ChannelID,
				truncate(e.Title(), 40),
				strconv.Itoa(len(e.Videos)),
				e.Source,
				e.FetchedAt.Local().Format(time.DateTime),
			})
		}
		t.Render()
	}

	histories, err := a.store.ListPlaylistHistory(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "\nPlaylists (%d):\n", len(histories))
	if len(histories) > 0 {
		t := newTable(a.out, "Title", "Playlist ID", "Last completed", "Last status", "Runs")
		for _, h := range histories {
			last := "never"
			if !h.LastRun.IsZero() {
				last = h.LastRun.Local().Format(time.DateTime)
			}
			status := "-"
			if n := len(h.Runs); n > 0 {
				r := h.Runs[n-1]
				status = fmt.Sprintf("%s (+%d, %d left)", r.Status, r.Added, r.Remaining)
			}
			t.Append([]string{truncate(h.Title, 40), h.PlaylistID, last, status, strconv.Itoa(len(h.Runs))})
		}
		t.Render()
	}
	return nil
}
