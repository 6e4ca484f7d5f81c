package depth

import (
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/depth-servo/internal/monitoring"
)

// Knobs are the four runtime-tunable vision parameters.
type Knobs struct {
	Band   DepthBand  `json:"band"`
	Window AreaWindow `json:"window"`
}

// KnobSource supplies the knobs for each frame.
type KnobSource interface {
	Knobs() Knobs
}

// KnobStore is a KnobSource that may be updated from another goroutine.
type KnobStore struct {
	v atomic.Pointer[Knobs]
}

// NewKnobStore returns a store holding k.
func NewKnobStore(k Knobs) *KnobStore {
	s := &KnobStore{}
	s.Set(k)
	return s
}

// Knobs returns the current knobs.
func (s *KnobStore) Knobs() Knobs { return *s.v.Load() }

// Set replaces the knobs. Inverted ranges are accepted and simply match
// nothing.
func (s *KnobStore) Set(k Knobs) { s.v.Store(&k) }

// TargetWriter receives the outcome of each processed frame.
type TargetWriter interface {
	// Update publishes the primary blob of a frame.
	Update(b Blob)
	// Miss records a processed frame with no qualifying blob.
	Miss()
}

// OverlayFunc receives the visualization buffer and detected blobs of each
// processed frame. It is presentational and cannot affect tracking.
type OverlayFunc func(vis []byte, width, height int, blobs []Blob)

// PipelineStats counts frame outcomes.
type PipelineStats struct {
	Processed uint64 `json:"frames_processed"`
	Dropped   uint64 `json:"frames_dropped"`
	Blobs     uint64 `json:"blobs_found"`
	Misses    uint64 `json:"frames_without_target"`
}

// Pipeline is the per-frame entry point of the vision half.
type Pipeline struct {
	width, height int
	knobs         KnobSource
	extractor     Extractor
	target        TargetWriter
	overlay       OverlayFunc

	processed atomic.Uint64
	dropped   atomic.Uint64
	blobs     atomic.Uint64
	misses    atomic.Uint64
}

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	Width     int
	Height    int
	Knobs     KnobSource
	Extractor Extractor // defaults to a ContourExtractor
	Target    TargetWriter
	Overlay   OverlayFunc
}

// NewPipeline creates a Pipeline expecting frames of the configured size.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	ex := cfg.Extractor
	if ex == nil {
		ex = NewContourExtractor()
	}
	return &Pipeline{
		width:     cfg.Width,
		height:    cfg.Height,
		knobs:     cfg.Knobs,
		extractor: ex,
		target:    cfg.Target,
		overlay:   cfg.Overlay,
	}
}

// ProcessFrame masks f, extracts its blobs and publishes the first one. A
// frame that does not match the expected geometry is dropped without
// touching the target. The returned error is informational; callers in the
// sensor loop only count it.
func (p *Pipeline) ProcessFrame(f DepthFrame) (blobs []Blob, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.dropped.Add(1)
			blobs, err = nil, fmt.Errorf("blob extraction panicked: %v", r)
		}
	}()

	if f.Width != p.width || f.Height != p.height {
		p.dropped.Add(1)
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrFrameSize, f.Width, f.Height, p.width, p.height)
	}
	if err := f.Validate(); err != nil {
		p.dropped.Add(1)
		return nil, err
	}

	k := p.knobs.Knobs()
	vis, mask := MaskFrame(f, k.Band)

	blobs, err = p.extractor.Extract(mask, k.Window)
	if err != nil {
		p.dropped.Add(1)
		return nil, err
	}
	for i := range blobs {
		blobs[i].Depth = f.At(blobs[i].Centroid.X, blobs[i].Centroid.Y)
	}

	p.processed.Add(1)
	p.blobs.Add(uint64(len(blobs)))
	if len(blobs) > 0 {
		p.target.Update(blobs[0])
		monitoring.Tracef("frame: %d blobs, target=(%d,%d) z=%d area=%.0f",
			len(blobs), blobs[0].Centroid.X, blobs[0].Centroid.Y, blobs[0].Depth, blobs[0].Area)
	} else {
		p.misses.Add(1)
		p.target.Miss()
		monitoring.Tracef("frame: no blob in area window (%.0f, %.0f)", k.Window.Min, k.Window.Max)
	}

	if p.overlay != nil {
		p.overlay(vis, f.Width, f.Height, append([]Blob(nil), blobs...))
	}
	return blobs, nil
}

// Stats returns a snapshot of the frame counters.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		Processed: p.processed.Load(),
		Dropped:   p.dropped.Load(),
		Blobs:     p.blobs.Load(),
		Misses:    p.misses.Load(),
	}
}
