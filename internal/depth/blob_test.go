package depth

import (
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fillRect sets a w x h block of mask pixels starting at (x0, y0).
func fillRect(m Mask, x0, y0, w, h int) {
	for y := y0; y < y0+h; y++ {
		for x := x0; x < x0+w; x++ {
			m.Pix[y*m.Width+x] = 255
		}
	}
}

func newMask(w, h int) Mask {
	return Mask{Width: w, Height: h, Pix: make([]byte, w*h)}
}

func TestAreaWindow_OpenInterval(t *testing.T) {
	w := AreaWindow{Min: 81, Max: 100}

	assert.False(t, w.Admits(81))
	assert.True(t, w.Admits(81.5))
	assert.True(t, w.Admits(99.9))
	assert.False(t, w.Admits(100))
	assert.False(t, AreaWindow{Min: 100, Max: 10}.Admits(50))
}

func TestBlobFromMoments(t *testing.T) {
	t.Run("centroid truncates", func(t *testing.T) {
		b, ok := blobFromMoments(map[string]float64{"m00": 4, "m10": 10, "m01": 19}, AreaWindow{Min: 0, Max: 10})
		require.True(t, ok)
		assert.Equal(t, image.Pt(2, 4), b.Centroid)
		assert.Equal(t, 4.0, b.Area)
	})

	t.Run("zero mass rejected even when admitted", func(t *testing.T) {
		_, ok := blobFromMoments(map[string]float64{"m00": 0, "m10": 0, "m01": 0}, AreaWindow{Min: -1, Max: 10})
		assert.False(t, ok)
	})

	t.Run("outside window rejected", func(t *testing.T) {
		_, ok := blobFromMoments(map[string]float64{"m00": 10, "m10": 1, "m01": 1}, AreaWindow{Min: 10, Max: 20})
		assert.False(t, ok)
	})
}

func TestContourExtractor_SquareBlob(t *testing.T) {
	m := newMask(64, 64)
	// A 10x10 block has a contour through the outer pixel centres, so its
	// polygon area is 9*9.
	fillRect(m, 20, 30, 10, 10)

	ex := NewContourExtractor()

	blobs, err := ex.Extract(m, AreaWindow{Min: 80, Max: 100})
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	assert.InDelta(t, 81.0, blobs[0].Area, 1e-9)
	assert.Equal(t, image.Pt(24, 34), blobs[0].Centroid)
	assert.ElementsMatch(t, []image.Point{
		image.Pt(20, 30), image.Pt(20, 39), image.Pt(29, 39), image.Pt(29, 30),
	}, blobs[0].Contour)

	// The lower bound is exclusive.
	blobs, err = ex.Extract(m, AreaWindow{Min: 81, Max: 100})
	require.NoError(t, err)
	assert.Empty(t, blobs)

	// So is the upper bound.
	blobs, err = ex.Extract(m, AreaWindow{Min: 0, Max: 81})
	require.NoError(t, err)
	assert.Empty(t, blobs)
}

func TestContourExtractor_IgnoresHoles(t *testing.T) {
	m := newMask(64, 64)
	fillRect(m, 10, 10, 21, 21)
	// Punch a hole; only the external contour counts.
	for y := 15; y < 25; y++ {
		for x := 15; x < 25; x++ {
			m.Pix[y*m.Width+x] = 0
		}
	}

	blobs, err := NewContourExtractor().Extract(m, AreaWindow{Min: 0, Max: 1e6})
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	assert.InDelta(t, 400.0, blobs[0].Area, 1e-9)
}

func TestContourExtractor_DegenerateContourSkipped(t *testing.T) {
	m := newMask(32, 32)
	m.Pix[5*32+5] = 255 // single pixel: zero-area contour
	fillRect(m, 15, 15, 6, 6)

	blobs, err := NewContourExtractor().Extract(m, AreaWindow{Min: -1, Max: 1e6})
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	assert.InDelta(t, 25.0, blobs[0].Area, 1e-9)
}

func TestContourExtractor_MultipleBlobs(t *testing.T) {
	m := newMask(100, 100)
	fillRect(m, 5, 5, 10, 10)
	fillRect(m, 60, 60, 20, 20)
	fillRect(m, 40, 5, 3, 3)

	blobs, err := NewContourExtractor().Extract(m, AreaWindow{Min: 50, Max: 1000})
	require.NoError(t, err)
	require.Len(t, blobs, 2)

	areas := []float64{blobs[0].Area, blobs[1].Area}
	assert.ElementsMatch(t, []float64{81, 361}, areas)
}

func TestContourExtractor_SizeMismatch(t *testing.T) {
	m := Mask{Width: 10, Height: 10, Pix: make([]byte, 50)}
	_, err := NewContourExtractor().Extract(m, AreaWindow{Max: 10})
	assert.ErrorIs(t, err, ErrFrameSize)
}

func TestAnnotate_LeavesInputUntouched(t *testing.T) {
	vis := make([]byte, 32*32)
	orig := append([]byte(nil), vis...)

	out, err := Annotate(vis, 32, 32, []Blob{{Centroid: image.Pt(10, 10), Area: 50}})
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, orig, vis)
	assert.Equal(t, 32, out.Rows())
	assert.Equal(t, 32, out.Cols())
	assert.Equal(t, 3, out.Channels())
}

func TestAnnotate_DrawsContours(t *testing.T) {
	vis := make([]byte, 32*32)
	square := []image.Point{image.Pt(4, 4), image.Pt(4, 20), image.Pt(20, 20), image.Pt(20, 4)}

	bare, err := Annotate(vis, 32, 32, []Blob{{Centroid: image.Pt(12, 12), Area: 256}})
	require.NoError(t, err)
	defer bare.Close()
	assert.Equal(t, []uint8{0, 0, 0}, []uint8(bare.GetVecbAt(4, 8)))

	out, err := Annotate(vis, 32, 32, []Blob{{Centroid: image.Pt(12, 12), Area: 256, Contour: square}})
	require.NoError(t, err)
	defer out.Close()

	// BGR pixel on the top edge, clear of the centroid marks and the label.
	assert.Equal(t, []uint8{0, 255, 0}, []uint8(out.GetVecbAt(4, 8)))
	assert.Equal(t, []uint8{0, 255, 0}, []uint8(out.GetVecbAt(16, 4)))
	assert.Equal(t, []uint8{0, 0, 0}, []uint8(out.GetVecbAt(28, 28)))
}

func TestSnapshotWriter_WritesEveryNth(t *testing.T) {
	dir := t.TempDir()
	write := SnapshotWriter(dir, 2)
	vis := make([]byte, 16*16)
	for i := 0; i < 5; i++ {
		write(vis, 16, 16, []Blob{{Centroid: image.Pt(8, 8), Area: 20}})
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.png"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "frame-000001.png"),
		filepath.Join(dir, "frame-000003.png"),
		filepath.Join(dir, "frame-000005.png"),
	}, files)
}
