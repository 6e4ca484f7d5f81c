package servo

import (
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depth-servo/internal/depth"
	"github.com/banshee-data/depth-servo/internal/timeutil"
)

func TestTargetTracker_UpdateRead(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	tr := NewTargetTracker(clock)

	_, ok := tr.Read()
	assert.False(t, ok)

	tr.Update(depth.Blob{Centroid: image.Pt(10, 20), Area: 150, Depth: 900})
	s, ok := tr.Read()
	require.True(t, ok)
	assert.Equal(t, TargetState{X: 10, Y: 20, Z: 900, Frame: 1, UpdatedAt: time.Unix(1000, 0)}, s)
}

func TestTargetTracker_MissKeepsTarget(t *testing.T) {
	tr := NewTargetTracker(nil)
	tr.Update(depth.Blob{Centroid: image.Pt(1, 2), Depth: 3})
	tr.Miss()
	tr.Miss()
	assert.Equal(t, 2, tr.Misses())

	s, ok := tr.Read()
	require.True(t, ok)
	assert.Equal(t, 1, s.X)

	tr.Update(depth.Blob{Centroid: image.Pt(4, 5), Depth: 6})
	assert.Zero(t, tr.Misses())
}

// Each snapshot must come from a single Update: x, y and z always agree.
func TestTargetTracker_ConcurrentSnapshotsConsistent(t *testing.T) {
	tr := NewTargetTracker(nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 5000; i++ {
			tr.Update(depth.Blob{Centroid: image.Pt(i, 2*i), Depth: uint16(i % 65536)})
		}
	}()

	var last uint64
	for i := 0; i < 5000; i++ {
		s, ok := tr.Read()
		if !ok {
			continue
		}
		require.Equal(t, 2*s.X, s.Y)
		require.Equal(t, uint16(s.X%65536), s.Z)
		require.GreaterOrEqual(t, s.Frame, last)
		last = s.Frame
	}
	wg.Wait()

	s, _ := tr.Read()
	assert.Equal(t, uint64(5000), s.Frame)
}
