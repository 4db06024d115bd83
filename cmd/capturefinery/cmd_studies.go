package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/banshee-data/capturefinery/internal/refinery"
)

func newStudiesCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "studies",
		Short: "List the studies under a source definition's results root",
		RunE: func(cmd *cobra.Command, _ []string) error {
			studies, err := refinery.DiscoverStudies(source)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(studies) == 0 {
				fmt.Fprintf(out, "No studies under %s\n", refinery.ResultsRoot(source))
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tROWS\tARCHIVE\tSCREENSHOTS")
			for _, s := range studies {
				rows, size := "-", "-"
				if info, err := os.Stat(s.ArchivePath()); err == nil {
					size = humanize.Bytes(uint64(info.Size()))
					if hof, err := refinery.LoadHallOfFame(s.Folder); err == nil {
						rows = fmt.Sprint(hof.Len())
					}
				}
				shots := 0
				if entries, err := os.ReadDir(s.ScreenshotDir()); err == nil {
					shots = len(entries)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", s.ID, s.Name, rows, size, shots)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Source definition path (required)")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}
