// capturefinery replays optimizer results through an execution host and turns
// the captured frames into looping animations.
//
// Usage:
//
//	capturefinery studies --source graph.dyn
//	capturefinery sweep   --source graph.dyn --study 1 [--start 0 --count 20] [--simulate]
//	capturefinery animate --study path/to/study
//	capturefinery errors  --study path/to/study --indices 3,7
//	capturefinery order   --study path/to/study --sort g1,v2
//	capturefinery chart   --study path/to/study -o objectives.png
//	capturefinery history --db sweeps.db
//	capturefinery serve   --source graph.dyn --simulate --listen :8090
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/capturefinery/internal/refinery"
	"github.com/banshee-data/capturefinery/internal/version"
)

// studyFlags select one study, either directly by folder or by name or
// number under a source definition's results root.
type studyFlags struct {
	source string
	study  string
}

func (f *studyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.source, "source", "", "Source definition path (graph.dyn); studies live under graph.RefineryResults")
	cmd.Flags().StringVarP(&f.study, "study", "s", "", "Study folder, or study name/number under --source (required)")
	_ = cmd.MarkFlagRequired("study")
}

// resolve returns the selected study. A --study naming an existing folder
// with an archive wins over discovery.
func (f *studyFlags) resolve() (refinery.Study, error) {
	if _, err := os.Stat(refinery.ArchivePath(f.study)); err == nil {
		return refinery.StudyFromFolder(f.study), nil
	}
	if f.source == "" {
		return refinery.Study{}, fmt.Errorf("no archive in %q and no --source to search", f.study)
	}
	studies, err := refinery.DiscoverStudies(f.source)
	if err != nil {
		return refinery.Study{}, err
	}
	s, ok := refinery.FindStudy(studies, f.study)
	if !ok {
		return refinery.Study{}, fmt.Errorf("study %q not found under %s", f.study, refinery.ResultsRoot(f.source))
	}
	return s, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "capturefinery",
		Short: "Capture optimizer results as screenshots and looping animations",
		Long: "capturefinery replays a study's hall of fame through an execution host,\n" +
			"captures one screenshot per solution and builds looping GIFs plus an\n" +
			"error-only study from the runs that failed.",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	root.AddCommand(newStudiesCmd())
	root.AddCommand(newSweepCmd())
	root.AddCommand(newAnimateCmd())
	root.AddCommand(newErrorsCmd())
	root.AddCommand(newOrderCmd())
	root.AddCommand(newChartCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newServeCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
