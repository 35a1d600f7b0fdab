// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ManuGH/sosync/internal/history"
	"github.com/spf13/cobra"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect locally recorded resolved sessions",
	}
	cmd.PersistentFlags().StringVar(&entity, "entity", deviceHistoryEntity, "history owner: device or console")

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List resolved sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("%w: --limit must not be negative", errUsage)
			}
			ctx := cmd.Context()
			a, hist, err := openHistory(cmd, opts, entity)
			if err != nil {
				return err
			}
			defer a.Close()
			records, err := hist.List(ctx, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tRESOLVED AT\tBY\tLAT\tLON\tRESPONSE")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.5f\t%.5f\t%s\n",
					r.SessionID, r.ResolvedAt.Format(time.RFC3339), r.ResolvedBy,
					r.LastPosition.Latitude, r.LastPosition.Longitude, r.ResponseDuration.Round(time.Second))
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", 0, "maximum records to show (0 for all)")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the local history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, hist, err := openHistory(cmd, opts, entity)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := hist.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %s history\n", entity)
			return nil
		},
	}
	cmd.AddCommand(list, clearCmd)
	return cmd
}

func openHistory(cmd *cobra.Command, opts *rootOptions, entity string) (*app, *history.Cache, error) {
	switch entity {
	case deviceHistoryEntity, consoleHistoryEntity:
	default:
		return nil, nil, fmt.Errorf("%w: unknown history entity %q", errUsage, entity)
	}
	a, err := openApp(cmd.Context(), opts)
	if err != nil {
		return nil, nil, err
	}
	hist, err := history.New(a.store, entity, a.cfg.History.Capacity)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, hist, nil
}
