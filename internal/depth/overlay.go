package depth

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"sync/atomic"

	"gocv.io/x/gocv"

	"github.com/banshee-data/depth-servo/internal/monitoring"
)

var (
	overlayContour  = color.RGBA{0, 255, 0, 0}
	overlayCentroid = color.RGBA{255, 0, 0, 0}
	overlayTarget   = color.RGBA{0, 0, 255, 0}
)

// Annotate renders the visualization buffer as a BGR image with each blob's
// contour outlined and its centroid marked; the first blob, the tracked
// target, is ringed. The input
// slices are not modified. The caller owns the returned Mat.
func Annotate(vis []byte, width, height int, blobs []Blob) (gocv.Mat, error) {
	grey, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC1, append([]byte(nil), vis...))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to wrap visualization: %w", err)
	}
	defer grey.Close()

	out := gocv.NewMat()
	gocv.CvtColor(grey, &out, gocv.ColorGrayToBGR)

	var outlines [][]image.Point
	for _, b := range blobs {
		if len(b.Contour) > 0 {
			outlines = append(outlines, b.Contour)
		}
	}
	if len(outlines) > 0 {
		pvs := gocv.NewPointsVectorFromPoints(outlines)
		gocv.DrawContours(&out, pvs, -1, overlayContour, 1)
		pvs.Close()
	}

	for i, b := range blobs {
		gocv.Circle(&out, b.Centroid, 3, overlayCentroid, -1)
		if i == 0 {
			gocv.Circle(&out, b.Centroid, 12, overlayTarget, 2)
		}
		gocv.PutText(&out, fmt.Sprintf("%.0f", b.Area), b.Centroid.Add(image.Pt(6, -6)),
			gocv.FontHersheyPlain, 1, overlayContour, 1)
	}
	return out, nil
}

// SnapshotWriter returns an OverlayFunc that writes every nth annotated
// frame to dir as frame-NNNNNN.png.
func SnapshotWriter(dir string, every int) OverlayFunc {
	if every <= 0 {
		every = 1
	}
	var seq atomic.Uint64
	return func(vis []byte, width, height int, blobs []Blob) {
		n := seq.Add(1)
		if (n-1)%uint64(every) != 0 {
			return
		}
		img, err := Annotate(vis, width, height, blobs)
		if err != nil {
			monitoring.Opsf("overlay: %v", err)
			return
		}
		defer img.Close()
		path := filepath.Join(dir, fmt.Sprintf("frame-%06d.png", n))
		if !gocv.IMWrite(path, img) {
			monitoring.Opsf("overlay: failed to write %s", path)
		}
	}
}
