package servo

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/banshee-data/depth-servo/internal/config"
	"github.com/banshee-data/depth-servo/internal/monitoring"
	"github.com/banshee-data/depth-servo/internal/timeutil"
)

// TargetReader is the control loop's view of the tracker.
type TargetReader interface {
	Read() (TargetState, bool)
	Misses() int
}

// Axis pairs a PID controller with its output saturation.
type Axis struct {
	PID    *AxisPID
	OutMin float64
	OutMax float64
}

func (a Axis) tick(pv float64) float64 {
	out := a.PID.Tick(pv)
	if a.OutMin < a.OutMax {
		out = math.Max(a.OutMin, math.Min(a.OutMax, out))
	}
	return out
}

// ControllerStats counts tick outcomes.
type ControllerStats struct {
	Ticks      uint64 `json:"ticks"`
	Sent       uint64 `json:"commands_sent"`
	SendErrors uint64 `json:"send_errors"`
	Disarms    uint64 `json:"disarms"`
}

// Controller computes and sends one actuation command per tick.
type Controller struct {
	target  TargetReader
	thrust  Axis // driven by target y
	roll    Axis // driven by target x
	pitch   Axis // driven by target z
	channel CommandChannel
	sink    StatusSink
	clock   timeutil.Clock

	// lossFrames > 0 enables the target-loss disarm policy.
	lossFrames int
	lost       bool

	ticks      atomic.Uint64
	sent       atomic.Uint64
	sendErrors atomic.Uint64
	disarms    atomic.Uint64
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Target  TargetReader
	Thrust  Axis
	Roll    Axis
	Pitch   Axis
	Channel CommandChannel
	Sink    StatusSink
	Clock   timeutil.Clock
	// TargetLossFrames is the number of consecutive frames without a target
	// after which ticks send the disarm command instead of PID output.
	// Zero disables the policy.
	TargetLossFrames int
}

// NewController validates cfg and builds a Controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Target == nil || cfg.Channel == nil {
		return nil, fmt.Errorf("controller requires a target reader and a command channel")
	}
	if cfg.Thrust.PID == nil || cfg.Roll.PID == nil || cfg.Pitch.PID == nil {
		return nil, fmt.Errorf("controller requires thrust, roll and pitch axes")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	sink := cfg.Sink
	if sink == nil {
		sink = MultiSink(nil)
	}
	return &Controller{
		target:     cfg.Target,
		thrust:     cfg.Thrust,
		roll:       cfg.Roll,
		pitch:      cfg.Pitch,
		channel:    cfg.Channel,
		sink:       sink,
		clock:      clock,
		lossFrames: cfg.TargetLossFrames,
	}, nil
}

// NewAxesFromConfig builds the three reference axes from a ServoConfig.
func NewAxesFromConfig(cfg *config.ServoConfig) (thrust, roll, pitch Axis, err error) {
	period := cfg.GetTickPeriod()
	build := func(name string, a config.Axis) (Axis, error) {
		pid, err := NewAxisPID(name, a.Setpoint, Gains{Kp: a.Kp, Ki: a.Ki, Kd: a.Kd, Bias: a.Bias},
			Clamp{Lo: a.IntegralMin, Hi: a.IntegralMax}, period)
		if err != nil {
			return Axis{}, err
		}
		return Axis{PID: pid, OutMin: a.OutputMin, OutMax: a.OutputMax}, nil
	}
	if thrust, err = build("thrust", cfg.GetThrust()); err != nil {
		return
	}
	if roll, err = build("roll", cfg.GetRoll()); err != nil {
		return
	}
	pitch, err = build("pitch", cfg.GetPitch())
	return
}

// Tick runs one control step: read the target, update the three axes,
// send the command and publish the status. It never returns an error;
// transport faults are logged and counted.
func (c *Controller) Tick() Status {
	st := Status{Tick: c.ticks.Add(1), Time: c.clock.Now()}
	st.Target, st.HaveTarget = c.target.Read()

	if c.targetLost(st.HaveTarget) {
		if !c.lost {
			monitoring.Opsf("target lost for %d frames, disarming", c.target.Misses())
			c.lost = true
			c.resetAxes()
		}
		st.Command = NewCommand(0, 0, 0)
		st.Disarmed = true
		c.disarms.Add(1)
	} else {
		if c.lost {
			monitoring.Opsf("target reacquired: %s", st.Target)
			c.lost = false
		}
		thrust := c.thrust.tick(float64(st.Target.Y))
		roll := c.roll.tick(float64(st.Target.X))
		pitch := c.pitch.tick(float64(st.Target.Z))
		st.Command = NewCommand(thrust, pitch, roll)
	}
	st.Axes = []AxisState{c.thrust.PID.State(), c.roll.PID.State(), c.pitch.PID.State()}

	if err := c.send(st.Command); err != nil {
		st.SendError = err.Error()
	}
	c.sink.Publish(st)
	return st
}

func (c *Controller) targetLost(have bool) bool {
	if c.lossFrames <= 0 {
		return false
	}
	return !have || c.target.Misses() >= c.lossFrames
}

func (c *Controller) resetAxes() {
	c.thrust.PID.Reset()
	c.roll.PID.Reset()
	c.pitch.PID.Reset()
}

// Disarm sends a single zero-thrust command.
func (c *Controller) Disarm() error {
	c.disarms.Add(1)
	if err := c.send(NewCommand(0, 0, 0)); err != nil {
		return fmt.Errorf("disarm: %w", err)
	}
	monitoring.Opsf("disarm command sent")
	return nil
}

func (c *Controller) send(cmd ActuationCommand) error {
	msg, err := cmd.Encode()
	if err == nil {
		err = c.channel.Send(msg)
	}
	if err != nil {
		c.sendErrors.Add(1)
		monitoring.Opsf("command send failed: %v", err)
		return err
	}
	c.sent.Add(1)
	return nil
}

// Close releases the command channel.
func (c *Controller) Close() error {
	return c.channel.Close()
}

// Stats returns a snapshot of the tick counters.
func (c *Controller) Stats() ControllerStats {
	return ControllerStats{
		Ticks:      c.ticks.Load(),
		Sent:       c.sent.Load(),
		SendErrors: c.sendErrors.Load(),
		Disarms:    c.disarms.Load(),
	}
}
