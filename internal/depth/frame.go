package depth

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// BytesPerSample is the size of one depth sample (little-endian uint16, mm).
const BytesPerSample = 2

// ErrFrameSize reports a frame whose buffer does not match its dimensions.
var ErrFrameSize = errors.New("depth frame size mismatch")

// DepthFrame is a read-only view over one sensor frame. Callers must not
// retain it past the callback that delivered it.
type DepthFrame struct {
	Width         int
	Height        int
	BytesPerPixel int
	Data          []byte
}

// NewDepthFrame packs samples into a DepthFrame.
func NewDepthFrame(width, height int, samples []uint16) DepthFrame {
	data := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*BytesPerSample:], s)
	}
	return DepthFrame{Width: width, Height: height, BytesPerPixel: BytesPerSample, Data: data}
}

// Validate checks that the buffer holds exactly Width*Height samples.
func (f DepthFrame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrFrameSize, f.Width, f.Height)
	}
	if f.BytesPerPixel != BytesPerSample {
		return fmt.Errorf("%w: %d bytes per pixel, want %d", ErrFrameSize, f.BytesPerPixel, BytesPerSample)
	}
	if want := f.Width * f.Height * f.BytesPerPixel; len(f.Data) != want {
		return fmt.Errorf("%w: buffer %d bytes, want %d", ErrFrameSize, len(f.Data), want)
	}
	return nil
}

// At returns the sample at (x, y), or 0 outside the frame.
func (f DepthFrame) At(x, y int) uint16 {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0
	}
	off := (y*f.Width + x) * BytesPerSample
	if off+1 >= len(f.Data) {
		return 0
	}
	return binary.LittleEndian.Uint16(f.Data[off:])
}
