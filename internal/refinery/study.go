package refinery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// sourceSuffix is the trailing text of a source definition path that is
	// swapped for resultsSuffix to find the results root.
	sourceSuffix  = "dyn"
	resultsSuffix = "RefineryResults"

	// ErrorStudySuffix marks a study derived from another study's error runs.
	ErrorStudySuffix = "-errors"

	screenshotDirName = "screenshots"
	screenshotExt     = ".jpg"
	errorImageMarker  = "-error"
)

// Study is one optimizer run persisted as a directory under the results root.
type Study struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Folder string `json:"folder"`
}

// ArchivePath returns the result document path inside a study folder.
func (s Study) ArchivePath() string { return ArchivePath(s.Folder) }

// ScreenshotDir returns the study's screenshot folder.
func (s Study) ScreenshotDir() string { return ScreenshotDir(s.Folder) }

// IsErrorStudy reports whether the study was itself derived from error runs.
func (s Study) IsErrorStudy() bool { return IsErrorStudy(s.Folder) }

// ArchivePath returns <folder>/RefineryResults.json.
func ArchivePath(folder string) string {
	return filepath.Join(folder, ArchiveFilename)
}

// ScreenshotDir returns <folder>/screenshots.
func ScreenshotDir(folder string) string {
	return filepath.Join(folder, screenshotDirName)
}

// ScreenshotPath returns <dir>/<index>.jpg, or <dir>/<index>-error.jpg for error runs.
func ScreenshotPath(dir string, index int, isError bool) string {
	name := strconv.Itoa(index)
	if isError {
		name += errorImageMarker
	}
	return filepath.Join(dir, name+screenshotExt)
}

// ErrorStudyFolder returns the sibling folder that holds a study's error runs.
func ErrorStudyFolder(folder string) string {
	return filepath.Clean(folder) + ErrorStudySuffix
}

// IsErrorStudy reports whether folder already carries the error-study suffix.
func IsErrorStudy(folder string) bool {
	return strings.HasSuffix(filepath.Clean(folder), ErrorStudySuffix)
}

// ResultsRoot derives the results root from a source definition path by
// replacing its trailing "dyn" with "RefineryResults" (graph.dyn ->
// graph.RefineryResults). Paths without that suffix get it appended.
func ResultsRoot(sourcePath string) string {
	if strings.HasSuffix(sourcePath, sourceSuffix) {
		return strings.TrimSuffix(sourcePath, sourceSuffix) + resultsSuffix
	}
	return sourcePath + "." + resultsSuffix
}

// DiscoverStudies lists the studies under the results root of sourcePath, in
// directory-name order, numbered from 1. A missing results root yields no studies.
func DiscoverStudies(sourcePath string) ([]Study, error) {
	root := ResultsRoot(sourcePath)
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing studies in %s: %w", root, err)
	}

	var studies []Study
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		studies = append(studies, Study{
			ID:     len(studies) + 1,
			Name:   e.Name(),
			Folder: filepath.Join(root, e.Name()),
		})
	}
	return studies, nil
}

// FindStudy returns the study whose name or numeric ID matches key.
func FindStudy(studies []Study, key string) (Study, bool) {
	id, idErr := strconv.Atoi(key)
	for _, s := range studies {
		if s.Name == key || (idErr == nil && s.ID == id) {
			return s, true
		}
	}
	return Study{}, false
}

// StudyFromFolder builds a Study for a folder given directly rather than discovered.
func StudyFromFolder(folder string) Study {
	folder = filepath.Clean(folder)
	return Study{ID: 0, Name: filepath.Base(folder), Folder: folder}
}
