package servo

import (
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/depth-servo/internal/monitoring"
)

// Status is the telemetry of one control tick.
type Status struct {
	Tick       uint64           `json:"tick"`
	Time       time.Time        `json:"time"`
	Target     TargetState      `json:"target"`
	HaveTarget bool             `json:"have_target"`
	Axes       []AxisState      `json:"axes"` // thrust, roll, pitch
	Command    ActuationCommand `json:"command"`
	Disarmed   bool             `json:"disarmed"`
	SendError  string           `json:"send_error,omitempty"`
}

// String renders the status as a single human-readable line.
func (s Status) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tick=%d ", s.Tick)
	if s.HaveTarget {
		fmt.Fprintf(&b, "%s ", s.Target)
	} else {
		b.WriteString("no target ")
	}
	for _, a := range s.Axes {
		fmt.Fprintf(&b, "| %s e=%.3f i=%.3f d=%.3f out=%.4f ", a.Name, a.Error, a.Integral, a.Derivative, a.Output)
	}
	fmt.Fprintf(&b, "| thrust=%.4f pitch=%.4f roll=%.4f", s.Command.Thrust, s.Command.Pitch, s.Command.Roll)
	if s.Disarmed {
		b.WriteString(" DISARMED")
	}
	if s.SendError != "" {
		fmt.Fprintf(&b, " send-error=%q", s.SendError)
	}
	return b.String()
}

// StatusSink receives one Status per tick. Publish must not block.
type StatusSink interface {
	Publish(s Status)
}

// MultiSink fans a status out to several sinks.
type MultiSink []StatusSink

// Publish forwards s to every sink.
func (m MultiSink) Publish(s Status) {
	for _, sink := range m {
		if sink != nil {
			sink.Publish(s)
		}
	}
}

// LogSink writes each status to the diag log stream.
type LogSink struct{}

// Publish logs s.
func (LogSink) Publish(s Status) {
	monitoring.Diagf("%s", s)
}
