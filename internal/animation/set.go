package animation

import (
	"fmt"
	"image"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/capturefinery/internal/security"
)

// Default widths for the reduced variants.
const (
	SmallWidth = 1000
	TinyWidth  = 500
)

// Variant is one output of an animation set.
type Variant struct {
	Suffix string
	Width  int // 0 keeps the source size
}

// DefaultVariants is the full-size, small and tiny triple.
var DefaultVariants = []Variant{
	{Suffix: ""},
	{Suffix: "-small", Width: SmallWidth},
	{Suffix: "-tiny", Width: TinyWidth},
}

// Variants returns the default triple with custom reduced widths. Non-positive
// widths fall back to the defaults.
func Variants(small, tiny int) []Variant {
	if small <= 0 {
		small = SmallWidth
	}
	if tiny <= 0 {
		tiny = TinyWidth
	}
	return []Variant{{Suffix: ""}, {Suffix: "-small", Width: small}, {Suffix: "-tiny", Width: tiny}}
}

// VariantPaths returns the files an animation set named root writes into dir.
func VariantPaths(dir, root string, variants []Variant) []string {
	paths := make([]string, len(variants))
	for i, v := range variants {
		paths[i] = filepath.Join(dir, root+v.Suffix+".gif")
	}
	return paths
}

// EncodeSet writes one GIF per variant concurrently and returns the paths
// that were written. Every output must resolve inside dir. With an empty frame
// selection nothing is written and the returned slice is empty.
func (e *Encoder) EncodeSet(frames map[int]image.Image, order []int, dir, root string, variants []Variant) ([]string, error) {
	if len(variants) == 0 {
		variants = DefaultVariants
	}
	if !hasFrames(frames, order) {
		logf("skipping %s set: %v", root, ErrEmptyFrameSet)
		return nil, nil
	}

	paths := VariantPaths(dir, root, variants)
	for _, p := range paths {
		if err := security.ValidatePathWithinDirectory(p, dir); err != nil {
			return nil, fmt.Errorf("animation %s: %w", root, err)
		}
	}

	var g errgroup.Group
	for i, v := range variants {
		path, width := paths[i], v.Width
		g.Go(func() error {
			return e.Encode(frames, order, path, width)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func hasFrames(frames map[int]image.Image, order []int) bool {
	for _, idx := range order {
		if img, ok := frames[idx]; ok && img != nil {
			return true
		}
	}
	return false
}
