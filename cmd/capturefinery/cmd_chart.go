package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/banshee-data/capturefinery/internal/chart"
	"github.com/banshee-data/capturefinery/internal/refinery"
)

// screenshotErrors returns the indices that have an error screenshot and no
// clean one.
func screenshotErrors(study refinery.Study, rows int) []int {
	dir := study.ScreenshotDir()
	var out []int
	for i := 0; i < rows; i++ {
		if _, err := os.Stat(refinery.ScreenshotPath(dir, i, true)); err != nil {
			continue
		}
		if _, err := os.Stat(refinery.ScreenshotPath(dir, i, false)); err == nil {
			continue
		}
		out = append(out, i)
	}
	return out
}

func newChartCmd() *cobra.Command {
	var (
		sf      studyFlags
		output  string
		x, y    string
		title   string
		noMarks bool
	)
	cmd := &cobra.Command{
		Use:   "chart",
		Short: "Plot two objectives (or an objective against rank) for every solution",
		RunE: func(cmd *cobra.Command, _ []string) error {
			study, err := sf.resolve()
			if err != nil {
				return err
			}
			hof, err := refinery.LoadHallOfFame(study.Folder)
			if err != nil {
				return err
			}
			if output == "" {
				output = filepath.Join(study.Folder, "objectives.png")
			}
			opts := chart.Options{X: x, Y: y, Title: title}
			if !noMarks {
				opts.ErrorIndices = screenshotErrors(study, hof.Len())
			}
			if err := chart.Scatter(hof, output, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Chart: %s (%d error runs marked)\n", output, len(opts.ErrorIndices))
			return nil
		},
	}
	sf.register(cmd)
	fl := cmd.Flags()
	fl.StringVarP(&output, "output", "o", "", "Output file; .png, .svg or .pdf (default <study>/objectives.png)")
	fl.StringVar(&x, "x", "", "X axis parameter, or \"rank\" (default first goal)")
	fl.StringVar(&y, "y", "", "Y axis parameter (default last goal)")
	fl.StringVar(&title, "title", "", "Chart title")
	fl.BoolVar(&noMarks, "no-error-marks", false, "Do not mark solutions with error screenshots")
	return cmd
}
