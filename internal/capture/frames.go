package capture

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"

	"github.com/banshee-data/capturefinery/internal/refinery"
)

// frameSet is a sparse map from row index to decoded frame.
type frameSet map[int]image.Image

func loadJPEG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LoadExisting fills gaps in clean and failed from screenshots already on disk
// for indices in [0,rows) outside [start,start+count). Error screenshots go to
// failed when splitErrors is set and to clean otherwise; a clean screenshot
// takes precedence over an error one for the same index. It returns the
// number of frames loaded.
func LoadExisting(dir string, rows, start, count int, splitErrors bool, clean, failed map[int]image.Image, warn func(string)) int {
	loaded := 0
	for i := 0; i < rows; i++ {
		if i >= start && i < start+count {
			continue
		}
		if p := refinery.ScreenshotPath(dir, i, false); exists(p) {
			if _, ok := clean[i]; !ok {
				if img, err := loadJPEG(p); err != nil {
					warn(fmt.Sprintf("existing frame %d: %v", i, err))
				} else {
					clean[i] = img
					loaded++
				}
			}
			continue
		}
		p := refinery.ScreenshotPath(dir, i, true)
		if !exists(p) {
			continue
		}
		target := clean
		if splitErrors {
			target = failed
		}
		if _, ok := target[i]; ok {
			continue
		}
		img, err := loadJPEG(p)
		if err != nil {
			warn(fmt.Sprintf("existing error frame %d: %v", i, err))
			continue
		}
		target[i] = img
		loaded++
	}
	return loaded
}
