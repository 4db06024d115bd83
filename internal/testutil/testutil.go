// Package testutil provides shared study fixtures for tests.
package testutil

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/capturefinery/internal/refinery"
)

// StudyFixture describes the hall of fame written by WriteStudy.
type StudyFixture struct {
	Goals     []string
	Variables []string
	Rows      [][]string
}

// Bridge is a two-row study with one goal and an integer and a boolean input.
var Bridge = StudyFixture{
	Goals:     []string{"g1"},
	Variables: []string{"v1", "v2"},
	Rows:      [][]string{{"10", "1", "true"}, {"20", "2", "false"}},
}

// WriteStudy writes fx as the archive of folder and returns the study.
func WriteStudy(t testing.TB, folder string, fx StudyFixture) refinery.Study {
	t.Helper()
	ids := make([]string, len(fx.Rows))
	for i := range ids {
		ids[i] = fmt.Sprintf("sol-%d", i)
	}
	a := &refinery.Archive{
		ID:     filepath.Base(folder),
		Status: "completed",
		HallOfFame: &refinery.HallOfFame{
			Goals:     fx.Goals,
			Variables: fx.Variables,
			IDs:       ids,
			Solutions: fx.Rows,
		},
	}
	if err := refinery.Save(refinery.ArchivePath(folder), a); err != nil {
		t.Fatalf("writing study %s: %v", folder, err)
	}
	return refinery.StudyFromFolder(folder)
}

// WriteJPEG writes a solid w x h JPEG to path, creating parent directories.
func WriteJPEG(t testing.TB, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("encoding %s: %v", path, err)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
