package servo

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func thrustPID(t *testing.T) *AxisPID {
	t.Helper()
	pid, err := NewAxisPID("thrust", 200, Gains{Kp: -0.001, Ki: -0.002, Kd: -1.0, Bias: 0.53},
		Clamp{Lo: -50, Hi: 50}, 50*time.Millisecond)
	require.NoError(t, err)
	return pid
}

func TestAxisPID_FirstTickThrust(t *testing.T) {
	pid := thrustPID(t)

	// e = -100, I = -100/50 = -2, D = 0 on the first tick.
	// out = 0.53 + (-0.001)(-100) + (-0.002)(-2) + 0 = 0.634
	out := pid.Tick(300)
	assert.InDelta(t, 0.634, out, 1e-12)

	st := pid.State()
	assert.Equal(t, "thrust", st.Name)
	assert.Equal(t, -100.0, st.Error)
	assert.Equal(t, -2.0, st.Integral)
	assert.Zero(t, st.Derivative)
}

func TestAxisPID_SecondTickDerivative(t *testing.T) {
	pid := thrustPID(t)
	pid.Tick(300)

	// e goes from -100 to -50: D = 50/50 = 1, I = -2 + -1 = -3.
	out := pid.Tick(250)
	st := pid.State()
	assert.Equal(t, 1.0, st.Derivative)
	assert.Equal(t, -3.0, st.Integral)
	assert.InDelta(t, 0.53+0.05+0.006-1.0, out, 1e-12)
}

func TestAxisPID_IntegralClamped(t *testing.T) {
	pid, err := NewAxisPID("roll", 256, Gains{Ki: 1}, Clamp{Lo: -100, Hi: 100}, time.Millisecond)
	require.NoError(t, err)

	inputs := []float64{-1e9, 1e9, -1e9, 0, 512, 1e6, -1e6, math.MaxFloat32, -math.MaxFloat32}
	for i := 0; i < 200; i++ {
		pid.Tick(inputs[i%len(inputs)])
		st := pid.State()
		require.GreaterOrEqual(t, st.Integral, -100.0, "tick %d", i)
		require.LessOrEqual(t, st.Integral, 100.0, "tick %d", i)
	}

	// Saturates at the upper bound with a constant positive error.
	for i := 0; i < 1000; i++ {
		pid.Tick(0)
	}
	assert.Equal(t, 100.0, pid.State().Integral)
}

func TestAxisPID_Reset(t *testing.T) {
	pid := thrustPID(t)
	pid.Tick(300)
	pid.Tick(100)
	pid.Reset()

	assert.Equal(t, AxisState{Name: "thrust", Setpoint: 200}, pid.State())

	// The first tick after a reset behaves like the first tick ever.
	assert.InDelta(t, 0.634, pid.Tick(300), 1e-12)
	assert.Zero(t, pid.State().Derivative)
}

func TestNewAxisPID_Errors(t *testing.T) {
	for _, period := range []time.Duration{0, -time.Millisecond} {
		_, err := NewAxisPID("x", 0, Gains{}, Clamp{}, period)
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	}

	_, err := NewAxisPID("x", 0, Gains{}, Clamp{Lo: 1, Hi: -1}, time.Millisecond)
	assert.ErrorContains(t, err, "inverted")
}
