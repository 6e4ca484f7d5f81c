package servo

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod reports a non-positive control period.
var ErrInvalidPeriod = errors.New("tick period must be positive")

// Gains are the coefficients of one axis: out = Bias + Kp*e + Ki*I + Kd*D.
type Gains struct {
	Kp   float64 `json:"kp"`
	Ki   float64 `json:"ki"`
	Kd   float64 `json:"kd"`
	Bias float64 `json:"bias"`
}

// Clamp bounds the accumulated integral.
type Clamp struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// AxisState is a read-only view of an axis after its last tick.
type AxisState struct {
	Name         string  `json:"name"`
	Setpoint     float64 `json:"setpoint"`
	ProcessValue float64 `json:"process_value"`
	Error        float64 `json:"error"`
	Integral     float64 `json:"integral"`
	Derivative   float64 `json:"derivative"`
	Output       float64 `json:"output"`
}

// AxisPID is the PID controller of a single axis. It is not safe for
// concurrent use; the scheduler owns it and only touches it inside a tick.
type AxisPID struct {
	name     string
	setpoint float64
	gains    Gains
	clamp    Clamp
	period   float64 // milliseconds

	pv         float64
	err        float64
	lastErr    float64
	integral   float64
	derivative float64
	output     float64
	primed     bool // false until the first tick has set lastErr
}

// NewAxisPID builds a controller. The integral and derivative terms are
// scaled by the period expressed in milliseconds.
func NewAxisPID(name string, setpoint float64, g Gains, c Clamp, period time.Duration) (*AxisPID, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%s: %w (got %s)", name, ErrInvalidPeriod, period)
	}
	if c.Lo > c.Hi {
		return nil, fmt.Errorf("%s: integral clamp [%g, %g] is inverted", name, c.Lo, c.Hi)
	}
	return &AxisPID{
		name:     name,
		setpoint: setpoint,
		gains:    g,
		clamp:    c,
		period:   float64(period) / float64(time.Millisecond),
	}, nil
}

// Tick advances the controller with a new process value and returns the
// control output. The derivative is zero on the first tick after
// construction or Reset, since there is no previous error yet.
func (p *AxisPID) Tick(pv float64) float64 {
	p.pv = pv
	p.err = p.setpoint - pv

	p.integral += p.err / p.period
	if p.integral < p.clamp.Lo {
		p.integral = p.clamp.Lo
	} else if p.integral > p.clamp.Hi {
		p.integral = p.clamp.Hi
	}

	if p.primed {
		p.derivative = (p.err - p.lastErr) / p.period
	} else {
		p.derivative = 0
		p.primed = true
	}
	p.lastErr = p.err

	p.output = p.gains.Bias + p.gains.Kp*p.err + p.gains.Ki*p.integral + p.gains.Kd*p.derivative
	return p.output
}

// Reset clears the error history and integral.
func (p *AxisPID) Reset() {
	p.pv, p.err, p.lastErr, p.integral, p.derivative, p.output = 0, 0, 0, 0, 0, 0
	p.primed = false
}

// State returns the axis values computed by the last tick.
func (p *AxisPID) State() AxisState {
	return AxisState{
		Name:         p.name,
		Setpoint:     p.setpoint,
		ProcessValue: p.pv,
		Error:        p.err,
		Integral:     p.integral,
		Derivative:   p.derivative,
		Output:       p.output,
	}
}
