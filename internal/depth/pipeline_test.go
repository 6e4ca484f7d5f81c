package depth

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTarget struct {
	updates []Blob
	misses  int
}

func (r *recordingTarget) Update(b Blob) { r.updates = append(r.updates, b) }
func (r *recordingTarget) Miss()         { r.misses++ }

type stubExtractor struct {
	blobs []Blob
	err   error
	calls int
	panic bool
}

func (s *stubExtractor) Extract(m Mask, w AreaWindow) ([]Blob, error) {
	s.calls++
	if s.panic {
		panic("opencv exploded")
	}
	return append([]Blob(nil), s.blobs...), s.err
}

func newTestPipeline(ex Extractor, target TargetWriter) *Pipeline {
	return NewPipeline(PipelineConfig{
		Width:     8,
		Height:    8,
		Knobs:     NewKnobStore(Knobs{Band: DepthBand{Min: 500, Max: 1500}, Window: AreaWindow{Min: 1, Max: 100}}),
		Extractor: ex,
		Target:    target,
	})
}

func TestPipeline_PublishesFirstBlob(t *testing.T) {
	samples := make([]uint16, 64)
	samples[3*8+2] = 1234
	ex := &stubExtractor{blobs: []Blob{
		{Centroid: image.Pt(2, 3), Area: 10},
		{Centroid: image.Pt(6, 6), Area: 50},
	}}
	target := &recordingTarget{}
	p := newTestPipeline(ex, target)

	blobs, err := p.ProcessFrame(NewDepthFrame(8, 8, samples))
	require.NoError(t, err)
	require.Len(t, blobs, 2)

	require.Len(t, target.updates, 1)
	assert.Equal(t, Blob{Centroid: image.Pt(2, 3), Area: 10, Depth: 1234}, target.updates[0])
	assert.Equal(t, PipelineStats{Processed: 1, Blobs: 2}, p.Stats())
}

func TestPipeline_NoBlobRecordsMiss(t *testing.T) {
	target := &recordingTarget{}
	p := newTestPipeline(&stubExtractor{}, target)

	_, err := p.ProcessFrame(NewDepthFrame(8, 8, make([]uint16, 64)))
	require.NoError(t, err)

	assert.Empty(t, target.updates)
	assert.Equal(t, 1, target.misses)
	assert.Equal(t, uint64(1), p.Stats().Misses)
}

func TestPipeline_MalformedFrameHasNoSideEffects(t *testing.T) {
	tests := []struct {
		name  string
		frame DepthFrame
	}{
		{"wrong dimensions", NewDepthFrame(4, 4, make([]uint16, 16))},
		{"short buffer", DepthFrame{Width: 8, Height: 8, BytesPerPixel: 2, Data: make([]byte, 127)}},
		{"wrong bytes per pixel", DepthFrame{Width: 8, Height: 8, BytesPerPixel: 1, Data: make([]byte, 64)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &stubExtractor{blobs: []Blob{{Centroid: image.Pt(1, 1), Area: 5}}}
			target := &recordingTarget{}
			p := newTestPipeline(ex, target)

			_, err := p.ProcessFrame(tt.frame)
			assert.ErrorIs(t, err, ErrFrameSize)
			assert.Zero(t, ex.calls)
			assert.Empty(t, target.updates)
			assert.Zero(t, target.misses)
			assert.Equal(t, uint64(1), p.Stats().Dropped)
		})
	}
}

func TestPipeline_ExtractorFailureIsContained(t *testing.T) {
	target := &recordingTarget{}

	p := newTestPipeline(&stubExtractor{err: errors.New("boom")}, target)
	_, err := p.ProcessFrame(NewDepthFrame(8, 8, make([]uint16, 64)))
	assert.Error(t, err)

	p = newTestPipeline(&stubExtractor{panic: true}, target)
	assert.NotPanics(t, func() {
		_, err = p.ProcessFrame(NewDepthFrame(8, 8, make([]uint16, 64)))
	})
	assert.Error(t, err)
	assert.Empty(t, target.updates)
	assert.Zero(t, target.misses)
}

func TestPipeline_OverlayCannotAlterTarget(t *testing.T) {
	ex := &stubExtractor{blobs: []Blob{{Centroid: image.Pt(2, 2), Area: 10}}}
	target := &recordingTarget{}
	p := NewPipeline(PipelineConfig{
		Width:     8,
		Height:    8,
		Knobs:     NewKnobStore(Knobs{Window: AreaWindow{Max: 100}}),
		Extractor: ex,
		Target:    target,
		Overlay: func(vis []byte, w, h int, blobs []Blob) {
			blobs[0].Centroid = image.Pt(7, 7)
		},
	})

	blobs, err := p.ProcessFrame(NewDepthFrame(8, 8, make([]uint16, 64)))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(2, 2), blobs[0].Centroid)
	assert.Equal(t, image.Pt(2, 2), target.updates[0].Centroid)
}

func TestKnobStore_SetIsVisible(t *testing.T) {
	s := NewKnobStore(Knobs{Band: DepthBand{Min: 1, Max: 2}})
	s.Set(Knobs{Band: DepthBand{Min: 3, Max: 4}, Window: AreaWindow{Min: 5, Max: 6}})

	assert.Equal(t, Knobs{Band: DepthBand{Min: 3, Max: 4}, Window: AreaWindow{Min: 5, Max: 6}}, s.Knobs())
}
