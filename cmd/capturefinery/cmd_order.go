package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/capturefinery/internal/ordering"
	"github.com/banshee-data/capturefinery/internal/refinery"
)

func newOrderCmd() *cobra.Command {
	var (
		sf   studyFlags
		sort string
	)
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Print the animation playback order for a sort chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			study, err := sf.resolve()
			if err != nil {
				return err
			}
			hof, err := refinery.LoadHallOfFame(study.Folder)
			if err != nil {
				return err
			}
			chain, err := ordering.ParseChain(hof, sort)
			if err != nil {
				return err
			}
			keys := chain.Parameters()
			order, err := ordering.ComputeOrder(hof, keys)
			if err != nil {
				return err
			}

			cols := make([]int, len(keys))
			for i, k := range keys {
				if cols[i], err = ordering.ColumnIndex(hof, k); err != nil {
					return err
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "FRAME\tINDEX\t%s\n", strings.ToUpper(strings.Join(keys, "\t")))
			for frame, i := range order {
				vals := make([]string, len(cols))
				if row, err := hof.Row(i); err == nil {
					for j, c := range cols {
						vals[j] = row[c]
					}
				}
				fmt.Fprintf(tw, "%d\t%d\t%s\n", frame, i, strings.Join(vals, "\t"))
			}
			return tw.Flush()
		},
	}
	sf.register(cmd)
	cmd.Flags().StringVar(&sort, "sort", "", "Comma-separated sort chain; each name breaks ties on the previous")
	return cmd
}
