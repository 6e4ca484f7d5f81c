package depth

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Blob is one qualifying contour reduced to its centroid and area.
type Blob struct {
	Centroid image.Point `json:"centroid"`
	Area     float64     `json:"area"`
	Depth    uint16      `json:"depth"`
	// Contour is the simplified outline the blob was measured from.
	Contour []image.Point `json:"-"`
}

// AreaWindow is an open interval of contour areas, in square pixels.
type AreaWindow struct {
	Min float64 `json:"min_blob_area"`
	Max float64 `json:"max_blob_area"`
}

// Admits reports whether Min < a < Max.
func (w AreaWindow) Admits(a float64) bool {
	return w.Min < a && a < w.Max
}

// Extractor finds blobs in a mask. Blobs are returned in extraction order
// with Depth unset.
type Extractor interface {
	Extract(m Mask, w AreaWindow) ([]Blob, error)
}

// ContourExtractor extracts blobs from the external contours of a mask
// using OpenCV. Holes inside a region are ignored.
type ContourExtractor struct{}

// NewContourExtractor returns an Extractor backed by gocv.
func NewContourExtractor() *ContourExtractor {
	return &ContourExtractor{}
}

// Extract traces the external contours of m and keeps every contour whose
// moment area lies strictly inside w.
func (e *ContourExtractor) Extract(m Mask, w AreaWindow) ([]Blob, error) {
	if len(m.Pix) != m.Width*m.Height {
		return nil, fmt.Errorf("%w: mask %d bytes for %dx%d", ErrFrameSize, len(m.Pix), m.Width, m.Height)
	}
	img, err := gocv.NewMatFromBytes(m.Height, m.Width, gocv.MatTypeCV8UC1, m.Pix)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap mask: %w", err)
	}
	defer img.Close()

	contours := gocv.FindContours(img, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var blobs []Blob
	for i := 0; i < contours.Size(); i++ {
		pv := contours.At(i)
		if b, ok := blobFromMoments(contourMoments(pv), w); ok {
			b.Contour = pv.ToPoints()
			blobs = append(blobs, b)
		}
	}
	return blobs, nil
}

func contourMoments(pv gocv.PointVector) map[string]float64 {
	pts := gocv.NewMatFromPointVector(pv, true)
	defer pts.Close()
	return gocv.Moments(pts, false)
}

// blobFromMoments applies the area window and computes the centroid. A
// contour with zero mass has no centroid and is rejected even when the
// window admits it.
func blobFromMoments(m map[string]float64, w AreaWindow) (Blob, bool) {
	area := m["m00"]
	if !w.Admits(area) {
		return Blob{}, false
	}
	if area == 0 {
		return Blob{}, false
	}
	return Blob{
		Centroid: image.Pt(int(m["m10"]/area), int(m["m01"]/area)),
		Area:     area,
	}, true
}
