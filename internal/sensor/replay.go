package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/banshee-data/depth-servo/internal/depth"
	"github.com/banshee-data/depth-servo/internal/monitoring"
	"github.com/banshee-data/depth-servo/internal/timeutil"
)

// ReplaySource plays back a file of concatenated raw frames, each
// Width*Height little-endian uint16 samples, one frame per Period.
type ReplaySource struct {
	Path   string
	Width  int
	Height int
	Period time.Duration
	// Loop rewinds the file at EOF instead of ending the stream.
	Loop  bool
	Clock timeutil.Clock

	frames atomic.Uint64
}

// NewReplaySource returns a source for path at the given frame rate.
func NewReplaySource(path string, width, height int, period time.Duration) *ReplaySource {
	return &ReplaySource{Path: path, Width: width, Height: height, Period: period}
}

// Run streams frames to handle. It returns nil when a non-looping replay
// reaches the end of the file, and ctx.Err() when cancelled. A trailing
// partial frame is ignored.
func (r *ReplaySource) Run(ctx context.Context, handle FrameHandler) error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("replay: invalid frame size %dx%d", r.Width, r.Height)
	}
	if r.Period <= 0 {
		return fmt.Errorf("replay: frame period must be positive, got %s", r.Period)
	}
	clock := r.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	f, err := os.Open(r.Path)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	defer f.Close()

	frameBytes := r.Width * r.Height * depth.BytesPerSample
	buf := make([]byte, frameBytes)
	reader := bufio.NewReaderSize(f, frameBytes)

	ticker := clock.NewTicker(r.Period)
	defer ticker.Stop()

	monitoring.Opsf("replaying %s (%dx%d every %s, loop=%t)", r.Path, r.Width, r.Height, r.Period, r.Loop)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}

		_, err := io.ReadFull(reader, buf)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if !r.Loop {
				monitoring.Opsf("replay finished after %d frames", r.frames.Load())
				return nil
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("replay: rewind: %w", err)
			}
			reader.Reset(f)
			if _, err = io.ReadFull(reader, buf); err != nil {
				return fmt.Errorf("replay: %s holds no complete frame", r.Path)
			}
		} else if err != nil {
			return fmt.Errorf("replay: %w", err)
		}

		r.frames.Add(1)
		handle(depth.DepthFrame{Width: r.Width, Height: r.Height, BytesPerPixel: depth.BytesPerSample, Data: buf})
	}
}

// Stats returns the number of frames replayed.
func (r *ReplaySource) Stats() Stats {
	return Stats{Frames: r.frames.Load()}
}
