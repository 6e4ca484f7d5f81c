package depth

import "encoding/binary"

// VisScale maps millimetres to visualization grey levels. The division is
// integer (8000/256 == 31), so samples at or beyond 31*256 mm wrap around
// modulo 256 instead of saturating. This aliasing is kept on purpose: the
// visualization buffer is presentational only and never feeds the mask.
const VisScale = 8000 / 256

// DepthBand is an inclusive range of depth samples, in millimetres.
type DepthBand struct {
	Min uint16 `json:"min_depth"`
	Max uint16 `json:"max_depth"`
}

// Contains reports whether d lies within the band. An inverted band
// contains nothing.
func (b DepthBand) Contains(d uint16) bool {
	return b.Min <= d && d <= b.Max
}

// Mask is a binary image with one byte per pixel, each 0 or 255.
type Mask struct {
	Width  int
	Height int
	Pix    []byte
}

// MaskFrame converts a validated frame into its visualization buffer and
// its depth-band mask. Both buffers have one byte per pixel.
func MaskFrame(f DepthFrame, band DepthBand) (vis []byte, mask Mask) {
	n := f.Width * f.Height
	vis = make([]byte, n)
	mask = Mask{Width: f.Width, Height: f.Height, Pix: make([]byte, n)}

	for i := 0; i < n; i++ {
		d := binary.LittleEndian.Uint16(f.Data[i*BytesPerSample:])
		vis[i] = byte(d / VisScale)
		if band.Contains(d) {
			mask.Pix[i] = 255
		}
	}
	return vis, mask
}
