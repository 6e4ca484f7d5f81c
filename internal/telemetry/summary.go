package telemetry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// AxisSummary describes the error and output distribution of one axis.
type AxisSummary struct {
	Name         string  `json:"name"`
	Samples      int     `json:"samples"`
	MeanError    float64 `json:"mean_error"`
	StdDevError  float64 `json:"stddev_error"`
	MeanAbsError float64 `json:"mean_abs_error"`
	MeanOutput   float64 `json:"mean_output"`
	StdDevOutput float64 `json:"stddev_output"`
	MinOutput    float64 `json:"min_output"`
	MaxOutput    float64 `json:"max_output"`
}

// SessionSummary aggregates a recorded session.
type SessionSummary struct {
	Session     string        `json:"session_id"`
	Ticks       int           `json:"ticks"`
	WithTarget  int           `json:"ticks_with_target"`
	Disarmed    int           `json:"ticks_disarmed"`
	SendErrors  int           `json:"send_errors"`
	Axes        []AxisSummary `json:"axes"`
	DurationSec float64       `json:"duration_sec"`
}

// Summary computes per-axis statistics for session.
func (s *Store) Summary(ctx context.Context, session string) (SessionSummary, error) {
	sum := SessionSummary{Session: session}
	var firstNs, lastNs int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(have_target), 0),
		       COALESCE(SUM(disarmed), 0),
		       COALESCE(SUM(CASE WHEN send_error != '' THEN 1 ELSE 0 END), 0),
		       COALESCE(MIN(ts_ns), 0),
		       COALESCE(MAX(ts_ns), 0)
		FROM ticks WHERE session_id = ?`, session).
		Scan(&sum.Ticks, &sum.WithTarget, &sum.Disarmed, &sum.SendErrors, &firstNs, &lastNs)
	if err != nil {
		return sum, fmt.Errorf("failed to summarise session %s: %w", session, err)
	}
	if sum.Ticks == 0 {
		return sum, fmt.Errorf("session %s has no recorded ticks", session)
	}
	sum.DurationSec = float64(lastNs-firstNs) / 1e9

	series, err := s.AxisSeries(ctx, session)
	if err != nil {
		return sum, err
	}
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return axisOrder(names[i]) < axisOrder(names[j]) })
	for _, name := range names {
		sum.Axes = append(sum.Axes, summarizeAxis(series[name]))
	}
	return sum, nil
}

func summarizeAxis(a *AxisSeries) AxisSummary {
	abs := make([]float64, len(a.Error))
	for i, e := range a.Error {
		if e < 0 {
			e = -e
		}
		abs[i] = e
	}
	meanErr, sdErr := stat.MeanStdDev(a.Error, nil)
	meanOut, sdOut := stat.MeanStdDev(a.Output, nil)
	return AxisSummary{
		Name:         a.Name,
		Samples:      len(a.Error),
		MeanError:    meanErr,
		StdDevError:  sdErr,
		MeanAbsError: stat.Mean(abs, nil),
		MeanOutput:   meanOut,
		StdDevOutput: sdOut,
		MinOutput:    floats.Min(a.Output),
		MaxOutput:    floats.Max(a.Output),
	}
}

// axisOrder sorts the controlled axes first in their command order.
func axisOrder(name string) string {
	switch name {
	case "thrust":
		return "0"
	case "roll":
		return "1"
	case "pitch":
		return "2"
	}
	return "9" + name
}

// String renders the summary as a small table.
func (s SessionSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s: %d ticks over %.1fs, %d with target, %d disarmed, %d send errors\n",
		s.Session, s.Ticks, s.DurationSec, s.WithTarget, s.Disarmed, s.SendErrors)
	fmt.Fprintf(&b, "%-8s %8s %10s %10s %10s %10s %10s %10s\n",
		"axis", "samples", "mean_err", "sd_err", "mean_out", "sd_out", "min_out", "max_out")
	for _, a := range s.Axes {
		fmt.Fprintf(&b, "%-8s %8d %10.3f %10.3f %10.4f %10.4f %10.4f %10.4f\n",
			a.Name, a.Samples, a.MeanError, a.StdDevError, a.MeanOutput, a.StdDevOutput, a.MinOutput, a.MaxOutput)
	}
	return b.String()
}
