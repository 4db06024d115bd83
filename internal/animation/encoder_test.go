package animation

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func testFrames(w, h int) map[int]image.Image {
	return map[int]image.Image{
		0: solid(w, h, color.RGBA{R: 255, A: 255}),
		1: solid(w, h, color.RGBA{G: 255, A: 255}),
		2: solid(w, h, color.RGBA{B: 255, A: 255}),
	}
}

func decode(t *testing.T, path string) (*gif.GIF, []byte) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	g, err := gif.DecodeAll(bytes.NewReader(data))
	require.NoError(t, err)
	return g, data
}

func TestEncode_LoopBlockOnceAtOffset13(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "animation.gif")
	require.NoError(t, NewEncoder(0).Encode(testFrames(8, 6), []int{0, 1, 2}, path, 0))

	g, data := decode(t, path)
	block := LoopExtension()
	assert.Len(t, block, 19)
	assert.Equal(t, 1, bytes.Count(data, block), "loop block must appear exactly once")
	assert.Equal(t, 13, bytes.Index(data, block))
	assert.Equal(t, 0, g.LoopCount, "decoder sees loop forever")
	assert.Len(t, g.Image, 3)
	assert.Equal(t, []int{10, 10, 10}, g.Delay)
	assert.Equal(t, 8, g.Config.Width)
	assert.Equal(t, 6, g.Config.Height)
}

func TestEncode_SingleFrameStillLoops(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "one.gif")
	require.NoError(t, NewEncoder(0).Encode(testFrames(4, 4), []int{1}, path, 0))

	g, data := decode(t, path)
	assert.Len(t, g.Image, 1)
	assert.Equal(t, 13, bytes.Index(data, LoopExtension()))
}

func TestEncode_SkipsMissingFramesInOrder(t *testing.T) {
	t.Parallel()
	frames := testFrames(4, 4)
	delete(frames, 1)
	path := filepath.Join(t.TempDir(), "sparse.gif")
	require.NoError(t, NewEncoder(0).Encode(frames, []int{2, 1, 7, 0}, path, 0))

	g, _ := decode(t, path)
	require.Len(t, g.Image, 2)
	// Frame order follows the order argument: blue first, then red.
	r, gr, b, _ := g.Image[0].At(0, 0).RGBA()
	assert.True(t, b > r && b > gr, "first frame should be blue")
	r, gr, b, _ = g.Image[1].At(0, 0).RGBA()
	assert.True(t, r > gr && r > b, "second frame should be red")
}

func TestEncode_EmptySelectionWritesNothing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "none.gif")

	require.NoError(t, NewEncoder(0).Encode(testFrames(4, 4), nil, path, 0))
	require.NoError(t, NewEncoder(0).Encode(map[int]image.Image{}, []int{0, 1}, path, 0))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no temp files left behind")
}

func TestEncode_RescaleLeavesSourcesUntouched(t *testing.T) {
	t.Parallel()
	frames := testFrames(40, 30)
	path := filepath.Join(t.TempDir(), "small.gif")
	require.NoError(t, NewEncoder(0).Encode(frames, []int{0, 1, 2}, path, 10))

	g, _ := decode(t, path)
	assert.Equal(t, 10, g.Config.Width)
	assert.Equal(t, 7, g.Config.Height)
	for _, img := range g.Image {
		assert.Equal(t, image.Rect(0, 0, 10, 7), img.Bounds())
	}
	for i, f := range frames {
		assert.Equal(t, image.Rect(0, 0, 40, 30), f.Bounds(), "frame %d", i)
	}
}

func TestEncode_MismatchedFramesFitFirstFrame(t *testing.T) {
	t.Parallel()
	frames := map[int]image.Image{
		0: solid(20, 10, color.White),
		1: solid(40, 40, color.Black),
	}
	path := filepath.Join(t.TempDir(), "mixed.gif")
	require.NoError(t, NewEncoder(0).Encode(frames, []int{0, 1}, path, 0))

	g, _ := decode(t, path)
	require.Len(t, g.Image, 2)
	assert.Equal(t, image.Rect(0, 0, 20, 10), g.Image[1].Bounds())
}

func TestEncode_CustomDelayAndOverwrite(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "delay.gif")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))

	require.NoError(t, NewEncoder(250*time.Millisecond).Encode(testFrames(4, 4), []int{0, 1}, path, 0))

	g, _ := decode(t, path)
	assert.Equal(t, []int{25, 25}, g.Delay)
}

func TestSpliceLoopExtension_RejectsNonGIF(t *testing.T) {
	t.Parallel()
	_, err := spliceLoopExtension([]byte("PNG"))
	assert.Error(t, err)

	withTable := []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00")
	_, err = spliceLoopExtension(withTable)
	assert.Error(t, err)
}
