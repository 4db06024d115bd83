package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/banshee-data/capturefinery/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var (
		dbPath string
		folder string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history [sweep-id]",
		Short: "List recorded sweeps, or show the rows of one sweep",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := history.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			store := history.NewStore(db)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			if len(args) == 1 {
				rec, err := store.GetSweep(args[0])
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("sweep %s not found", args[0])
				}
				its, err := store.Iterations(rec.SweepID)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "Sweep:\t%s\n", rec.SweepID)
				fmt.Fprintf(tw, "Study:\t%s (%s)\n", rec.Study, rec.Folder)
				fmt.Fprintf(tw, "Rows:\t%d..%d\n", rec.Start, rec.Start+rec.Count-1)
				fmt.Fprintf(tw, "Status:\t%s\n", rec.Status)
				if rec.Error != "" {
					fmt.Fprintf(tw, "Error:\t%s\n", rec.Error)
				}
				if rec.ErrorStudy != "" {
					fmt.Fprintf(tw, "Error study:\t%s\n", rec.ErrorStudy)
				}
				fmt.Fprintln(tw, "\nINDEX\tERROR\tSCREENSHOT\tWARNING")
				for _, it := range its {
					fmt.Fprintf(tw, "%d\t%t\t%s\t%s\n", it.Index, it.IsError, it.Screenshot, it.Warning)
				}
				return tw.Flush()
			}

			sweeps, err := store.ListSweeps(folder, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "SWEEP\tSTUDY\tROWS\tSTATUS\tERRORS\tSTARTED\tDURATION")
			for _, s := range sweeps {
				dur := "-"
				if s.CompletedAt != nil {
					dur = s.CompletedAt.Sub(s.StartedAt).Round(time.Second).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%s\t%s\n",
					s.SweepID, s.Study, s.Count, s.Status, len(s.ErrorIndices), humanize.Time(s.StartedAt), dur)
			}
			return tw.Flush()
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&dbPath, "db", "", "Sweep history database (required)")
	fl.StringVar(&folder, "folder", "", "Only sweeps of this study folder")
	fl.IntVar(&limit, "limit", 20, "Maximum sweeps to list")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}
