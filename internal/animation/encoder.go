// Package animation assembles captured frames into looping animated GIFs.
package animation

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	xdraw "golang.org/x/image/draw"

	"github.com/banshee-data/capturefinery/internal/monitoring"
	"github.com/banshee-data/capturefinery/internal/refinery"
)

// DefaultDelay is the uniform pause between frames.
const DefaultDelay = 100 * time.Millisecond

// ErrEmptyFrameSet marks an encode request whose order selects no frames.
// Encode treats it as a no-op and never returns it.
var ErrEmptyFrameSet = errors.New("no frames to encode")

var logf = monitoring.Component("animation")

// Encoder turns sparse frame sets into GIF files.
type Encoder struct {
	// Delay between frames; zero means DefaultDelay.
	Delay time.Duration

	// Scaler resamples frames; nil means bilinear.
	Scaler xdraw.Scaler
}

// NewEncoder returns an Encoder with the given inter-frame delay.
func NewEncoder(delay time.Duration) *Encoder {
	return &Encoder{Delay: delay}
}

// Encode writes the frames selected by order to path as a looping GIF. Indices
// with no frame are skipped; if nothing remains no file is written. A
// targetWidth > 0 rescales every frame to that width, deriving the height from
// the first present frame's aspect ratio. Source frames are never modified.
func (e *Encoder) Encode(frames map[int]image.Image, order []int, path string, targetWidth int) error {
	data, n, err := e.encode(frames, order, targetWidth)
	if errors.Is(err, ErrEmptyFrameSet) {
		logf("skipping %s: %v", filepath.Base(path), err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}
	logf("wrote %s: %d frames, %s", path, n, humanize.Bytes(uint64(len(data))))
	return nil
}

// encode returns the finished GIF bytes and the frame count.
func (e *Encoder) encode(frames map[int]image.Image, order []int, targetWidth int) ([]byte, int, error) {
	var seq []image.Image
	for _, idx := range order {
		if img, ok := frames[idx]; ok && img != nil {
			seq = append(seq, img)
		}
	}
	if len(seq) == 0 {
		return nil, 0, ErrEmptyFrameSet
	}

	size := seq[0].Bounds().Size()
	if size.X <= 0 || size.Y <= 0 {
		return nil, 0, fmt.Errorf("first frame has empty bounds %v", seq[0].Bounds())
	}
	if targetWidth > 0 {
		h := size.Y * targetWidth / size.X
		if h < 1 {
			h = 1
		}
		size = image.Pt(targetWidth, h)
	}

	delay := e.delayCentis()
	anim := &gif.GIF{
		Image: make([]*image.Paletted, 0, len(seq)),
		Delay: make([]int, 0, len(seq)),
		// The loop block is spliced in afterwards at a fixed offset.
		LoopCount: -1,
	}
	for _, img := range seq {
		anim.Image = append(anim.Image, e.quantize(img, size))
		anim.Delay = append(anim.Delay, delay)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, 0, err
	}
	out, err := spliceLoopExtension(buf.Bytes())
	if err != nil {
		return nil, 0, err
	}
	return out, len(seq), nil
}

// quantize produces a paletted copy of img at size, resampling when needed.
// The transient resampled copy is dropped as soon as it has been dithered.
func (e *Encoder) quantize(img image.Image, size image.Point) *image.Paletted {
	src := img
	if img.Bounds().Size() != size {
		scaled := image.NewRGBA(image.Rectangle{Max: size})
		e.scaler().Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Src, nil)
		src = scaled
	}
	dst := image.NewPaletted(image.Rectangle{Max: size}, palette.Plan9)
	xdraw.FloydSteinberg.Draw(dst, dst.Bounds(), src, src.Bounds().Min)
	return dst
}

func (e *Encoder) scaler() xdraw.Scaler {
	if e.Scaler != nil {
		return e.Scaler
	}
	return xdraw.ApproxBiLinear
}

// delayCentis converts the frame delay to GIF's 1/100 s units.
func (e *Encoder) delayCentis() int {
	d := e.Delay
	if d <= 0 {
		d = DefaultDelay
	}
	c := int(d / (10 * time.Millisecond))
	if c < 1 {
		c = 1
	}
	return c
}

// writeFileAtomic replaces path with data via a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", refinery.ErrIO, dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file for %s: %w", refinery.ErrIO, path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: writing %s: %w", refinery.ErrIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: closing %s: %w", refinery.ErrIO, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replacing %s: %w", refinery.ErrIO, path, err)
	}
	return nil
}
