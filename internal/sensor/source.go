// Package sensor provides depth frame sources: replay of raw frame files and
// a chunked UDP depth stream.
package sensor

import (
	"context"

	"github.com/banshee-data/depth-servo/internal/depth"
)

// FrameHandler receives each complete frame. The frame's buffer is only
// valid for the duration of the call.
type FrameHandler func(f depth.DepthFrame)

// Source produces depth frames until ctx is cancelled or the stream ends.
type Source interface {
	Run(ctx context.Context, handle FrameHandler) error
}

// Stats counts source activity.
type Stats struct {
	Frames     uint64 `json:"frames"`
	Packets    uint64 `json:"packets"`
	Bytes      uint64 `json:"bytes"`
	Incomplete uint64 `json:"incomplete_frames"`
	Malformed  uint64 `json:"malformed_packets"`
}
