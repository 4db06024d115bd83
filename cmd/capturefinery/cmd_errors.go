package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/capturefinery/internal/refinery"
)

// parseIndices parses a comma-separated list of solution indices.
func parseIndices(s string) ([]int, error) {
	var out []int
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid index '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func newErrorsCmd() *cobra.Command {
	var (
		sf      studyFlags
		indices string
		dest    string
	)
	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Write a study holding only the given solutions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			study, err := sf.resolve()
			if err != nil {
				return err
			}
			idx, err := parseIndices(indices)
			if err != nil {
				return err
			}
			if len(idx) == 0 {
				return fmt.Errorf("--indices selects no solutions")
			}
			if dest == "" {
				if study.IsErrorStudy() {
					return fmt.Errorf("%s is already an error study; pass --dest", study.Name)
				}
				dest = refinery.ErrorStudyFolder(study.Folder)
			}
			if err := refinery.WriteFilteredArchive(study.ArchivePath(), dest, idx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d solutions to %s\n", len(idx), dest)
			return nil
		},
	}
	sf.register(cmd)
	cmd.Flags().StringVar(&indices, "indices", "", "Comma-separated solution indices (required)")
	cmd.Flags().StringVar(&dest, "dest", "", "Destination study folder (default <study>-errors)")
	_ = cmd.MarkFlagRequired("indices")
	return cmd
}
