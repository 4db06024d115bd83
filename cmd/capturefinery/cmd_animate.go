package main

import (
	"fmt"
	"image"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/capturefinery/internal/animation"
	"github.com/banshee-data/capturefinery/internal/capture"
	"github.com/banshee-data/capturefinery/internal/config"
	"github.com/banshee-data/capturefinery/internal/ordering"
	"github.com/banshee-data/capturefinery/internal/refinery"
	"github.com/banshee-data/capturefinery/internal/security"
)

func newAnimateCmd() *cobra.Command {
	var (
		sf          studyFlags
		sort        string
		name        string
		delay       time.Duration
		small, tiny int
		mergeErrors bool
	)
	cmd := &cobra.Command{
		Use:   "animate",
		Short: "Rebuild animations from a study's existing screenshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			study, err := sf.resolve()
			if err != nil {
				return err
			}
			hof, err := refinery.LoadHallOfFame(study.Folder)
			if err != nil {
				return err
			}
			order, err := ordering.ComputeOrder(hof, config.SplitSort(sort))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			clean, failed := map[int]image.Image{}, map[int]image.Image{}
			dir := study.ScreenshotDir()
			n := capture.LoadExisting(dir, hof.Len(), 0, 0, !mergeErrors, clean, failed, func(msg string) {
				fmt.Fprintf(out, "  warning: %s\n", msg)
			})
			if n == 0 {
				return fmt.Errorf("no screenshots in %s", dir)
			}

			enc := animation.NewEncoder(delay)
			root := security.SanitizeFilename(name)
			variants := animation.Variants(small, tiny)
			var written []string
			paths, err := enc.EncodeSet(clean, order, dir, root, variants)
			if err != nil {
				return err
			}
			written = append(written, paths...)
			paths, err = enc.EncodeSet(failed, order, dir, root+refinery.ErrorStudySuffix, variants)
			if err != nil {
				return err
			}
			written = append(written, paths...)

			fmt.Fprintf(out, "Loaded %d frames (%d clean, %d error)\n", n, len(clean), len(failed))
			for _, p := range written {
				fmt.Fprintf(out, "Animation: %s\n", p)
			}
			return nil
		},
	}
	sf.register(cmd)
	fl := cmd.Flags()
	fl.StringVar(&sort, "sort", "", "Comma-separated playback sort chain")
	fl.StringVar(&name, "animation-name", config.DefaultAnimationName, "Animation file name root")
	fl.DurationVar(&delay, "frame-delay", config.DefaultFrameDelay, "Animation frame delay")
	fl.IntVar(&small, "small-width", config.DefaultSmallWidth, "Width of the -small animation")
	fl.IntVar(&tiny, "tiny-width", config.DefaultTinyWidth, "Width of the -tiny animation")
	fl.BoolVar(&mergeErrors, "merge-errors", false, "Put error screenshots in the main animation")
	return cmd
}
