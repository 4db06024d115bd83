// Package refinery reads and writes the optimizer's result archive
// (RefineryResults.json) and discovers the studies stored next to a source
// definition.
package refinery

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ArchiveFilename is the canonical name of a study's result document.
const ArchiveFilename = "RefineryResults.json"

// maxArchiveSize bounds how much of a result document is read into memory.
const maxArchiveSize = 256 * 1024 * 1024

var (
	// ErrArchiveParse is returned when a result document is missing or malformed.
	ErrArchiveParse = errors.New("archive parse error")

	// ErrNoHallOfFame is returned when a result document has no hall-of-fame section.
	ErrNoHallOfFame = errors.New("archive has no hall of fame")

	// ErrIO wraps filesystem failures while writing archives or artifacts.
	ErrIO = errors.New("io error")

	// ErrIndexOutOfRange is returned when a solution index does not exist.
	ErrIndexOutOfRange = errors.New("solution index out of range")

	// ErrMalformedRow is returned when a row breaks the goals+variables column count.
	ErrMalformedRow = errors.New("malformed solution row")
)

// Archive is the optimizer's persisted result document.
type Archive struct {
	ID                string      `json:"id"`
	Status            string      `json:"status"`
	TaskSolver        string      `json:"task_solver"`
	Endpoint          string      `json:"endpoint"`
	CurrentGeneration int         `json:"currentGeneration"`
	MaxGeneration     int         `json:"maxGeneration"`
	PopulationCount   int         `json:"population_count"`
	Size              int64       `json:"size"`
	HallOfFame        *HallOfFame `json:"hallOfFame"`
}

// HallOfFame is the ranked solution set. Each row holds the objective values
// (one per goal) followed by the input values (one per variable), all encoded
// as strings. The row index is both rank and identity.
type HallOfFame struct {
	Goals     []string   `json:"goals"`
	IDs       []string   `json:"ids"`
	Solutions [][]string `json:"solutions"`
	Variables []string   `json:"variables"`
}

// Load reads and decodes the archive at path. Row lengths are not checked here;
// consumers validate rows lazily via HallOfFame.Row or HallOfFame.Validate.
func Load(path string) (*Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrArchiveParse, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrArchiveParse, path)
	}
	if info.Size() > maxArchiveSize {
		return nil, fmt.Errorf("%w: %s too large: %d bytes (max %d)", ErrArchiveParse, path, info.Size(), maxArchiveSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrArchiveParse, path, err)
	}

	var a Archive
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrArchiveParse, path, err)
	}
	return &a, nil
}

// Save writes the full archive to path, creating the parent directory if needed.
func Save(path string, a *Archive) error {
	if a == nil {
		return fmt.Errorf("%w: nil archive for %s", ErrIO, path)
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %w", ErrIO, path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrIO, filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: writing %s: %w", ErrIO, path, err)
	}
	return nil
}

// ExtractHallOfFame returns the archive's nested solution set.
func ExtractHallOfFame(a *Archive) (*HallOfFame, error) {
	if a == nil || a.HallOfFame == nil {
		return nil, ErrNoHallOfFame
	}
	return a.HallOfFame, nil
}

// LoadHallOfFame loads the archive stored in studyFolder and returns its hall of fame.
func LoadHallOfFame(studyFolder string) (*HallOfFame, error) {
	a, err := Load(ArchivePath(studyFolder))
	if err != nil {
		return nil, err
	}
	return ExtractHallOfFame(a)
}

// RowLen is the number of columns every solution row must carry.
func (h *HallOfFame) RowLen() int {
	return len(h.Goals) + len(h.Variables)
}

// Len returns the number of ranked solutions.
func (h *HallOfFame) Len() int {
	return len(h.Solutions)
}

// Parameters returns the goal names followed by the variable names, which is
// also the column order of each row.
func (h *HallOfFame) Parameters() []string {
	out := make([]string, 0, h.RowLen())
	out = append(out, h.Goals...)
	return append(out, h.Variables...)
}

// Row returns solution i after checking its index and column count.
func (h *HallOfFame) Row(i int) ([]string, error) {
	if i < 0 || i >= len(h.Solutions) {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, i, len(h.Solutions))
	}
	row := h.Solutions[i]
	if len(row) != h.RowLen() {
		return nil, fmt.Errorf("%w: row %d has %d values, want %d (%d goals + %d variables)",
			ErrMalformedRow, i, len(row), h.RowLen(), len(h.Goals), len(h.Variables))
	}
	return row, nil
}

// Inputs returns the variable values of solution i, in variable order.
func (h *HallOfFame) Inputs(i int) ([]string, error) {
	row, err := h.Row(i)
	if err != nil {
		return nil, err
	}
	return row[len(h.Goals):], nil
}

// Validate checks the row-length invariant on every solution.
func (h *HallOfFame) Validate() error {
	var errs []error
	for i := range h.Solutions {
		if _, err := h.Row(i); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
