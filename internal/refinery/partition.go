package refinery

import "fmt"

// WriteFilteredArchive copies the archive at sourceArchivePath into destFolder,
// keeping only the solutions at indices, in the order given. Every other field
// of the document is preserved.
func WriteFilteredArchive(sourceArchivePath, destFolder string, indices []int) error {
	a, err := Load(sourceArchivePath)
	if err != nil {
		return err
	}
	hof, err := ExtractHallOfFame(a)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrArchiveParse, sourceArchivePath, err)
	}

	subset := make([][]string, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(hof.Solutions) {
			return fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, idx, len(hof.Solutions))
		}
		subset[i] = hof.Solutions[idx]
	}
	hof.Solutions = subset

	return Save(ArchivePath(destFolder), a)
}
