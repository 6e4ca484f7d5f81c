package sensor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/depth-servo/internal/depth"
	"github.com/banshee-data/depth-servo/internal/timeutil"
)

func writeReplayFile(t *testing.T, frames ...depth.DepthFrame) string {
	t.Helper()
	var data []byte
	for _, f := range frames {
		data = append(data, f.Data...)
	}
	path := filepath.Join(t.TempDir(), "frames.raw")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestReplaySource_PlaysFramesAtPeriod(t *testing.T) {
	a, b := testFrame(4, 2), depth.NewDepthFrame(4, 2, []uint16{1, 2, 3, 4, 5, 6, 7, 8})
	path := writeReplayFile(t, a, b)
	clock := timeutil.NewMockClock(time.Unix(0, 0))

	src := NewReplaySource(path, 4, 2, 100*time.Millisecond)
	src.Clock = clock

	got := make(chan []byte, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- src.Run(context.Background(), func(f depth.DepthFrame) {
			got <- append([]byte(nil), f.Data...)
		})
	}()
	<-clock.TickerCreated()

	for _, want := range [][]byte{a.Data, b.Data} {
		clock.Advance(100 * time.Millisecond)
		select {
		case data := <-got:
			assert.Equal(t, want, data)
		case <-time.After(2 * time.Second):
			t.Fatal("frame not replayed")
		}
	}

	clock.Advance(100 * time.Millisecond)
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not finish")
	}
	assert.Equal(t, uint64(2), src.Stats().Frames)
}

func TestReplaySource_Loop(t *testing.T) {
	path := writeReplayFile(t, testFrame(2, 2))
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := NewReplaySource(path, 2, 2, time.Millisecond)
	src.Loop = true
	src.Clock = clock

	ctx, cancel := context.WithCancel(context.Background())
	count := 0
	errc := make(chan error, 1)
	delivered := make(chan struct{}, 8)
	go func() {
		errc <- src.Run(ctx, func(depth.DepthFrame) {
			count++
			delivered <- struct{}{}
		})
	}()
	<-clock.TickerCreated()

	for i := 0; i < 3; i++ {
		clock.Advance(time.Millisecond)
		<-delivered
	}
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.Equal(t, 3, count)
}

func TestReplaySource_Errors(t *testing.T) {
	ctx := context.Background()
	noop := func(depth.DepthFrame) {}

	assert.Error(t, NewReplaySource("x", 0, 2, time.Millisecond).Run(ctx, noop))
	assert.Error(t, NewReplaySource("x", 2, 2, 0).Run(ctx, noop))
	assert.Error(t, NewReplaySource(filepath.Join(t.TempDir(), "missing.raw"), 2, 2, time.Millisecond).Run(ctx, noop))
}
