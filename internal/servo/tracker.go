package servo

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/banshee-data/depth-servo/internal/depth"
	"github.com/banshee-data/depth-servo/internal/timeutil"
)

// TargetState is the last known position of the primary target.
type TargetState struct {
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Z         uint16    `json:"z"`
	Frame     uint64    `json:"frame"` // sequence number of the update
	UpdatedAt time.Time `json:"updated_at"`
}

func (s TargetState) String() string {
	return fmt.Sprintf("target#%d (%d,%d) z=%dmm", s.Frame, s.X, s.Y, s.Z)
}

// TargetTracker holds the latest target. It has a single writer (the frame
// pipeline) and a single reader (the control tick); each update replaces
// the whole snapshot at once.
type TargetTracker struct {
	clock  timeutil.Clock
	state  atomic.Pointer[TargetState]
	seq    atomic.Uint64
	misses atomic.Int64
}

// NewTargetTracker returns an empty tracker.
func NewTargetTracker(clock timeutil.Clock) *TargetTracker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &TargetTracker{clock: clock}
}

// Update publishes b as the current target and clears the miss count.
func (t *TargetTracker) Update(b depth.Blob) {
	t.state.Store(&TargetState{
		X:         b.Centroid.X,
		Y:         b.Centroid.Y,
		Z:         b.Depth,
		Frame:     t.seq.Add(1),
		UpdatedAt: t.clock.Now(),
	})
	t.misses.Store(0)
}

// Miss records a frame without a qualifying blob. The previous target is
// kept.
func (t *TargetTracker) Miss() {
	t.misses.Add(1)
}

// Read returns the latest snapshot; ok is false until the first Update.
func (t *TargetTracker) Read() (s TargetState, ok bool) {
	p := t.state.Load()
	if p == nil {
		return TargetState{}, false
	}
	return *p, true
}

// Misses returns the number of consecutive frames without a target.
func (t *TargetTracker) Misses() int {
	return int(t.misses.Load())
}
