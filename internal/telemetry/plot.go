package telemetry

import (
	"context"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var axisColors = map[string]color.Color{
	"thrust": color.RGBA{R: 220, G: 50, B: 47, A: 255},
	"roll":   color.RGBA{R: 38, G: 139, B: 210, A: 255},
	"pitch":  color.RGBA{R: 133, G: 153, B: 0, A: 255},
}

// ExportPlot renders the command outputs of session against tick number
// and saves the chart to path. The format follows the file extension
// (.png, .svg, .pdf).
func (s *Store) ExportPlot(ctx context.Context, session, path string) error {
	series, err := s.AxisSeries(ctx, session)
	if err != nil {
		return err
	}
	if len(series) == 0 {
		return fmt.Errorf("session %s has no axis samples", session)
	}

	p := plot.New()
	p.Title.Text = "Session " + session
	p.X.Label.Text = "tick"
	p.Y.Label.Text = "output"
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	for _, name := range []string{"thrust", "roll", "pitch"} {
		a, ok := series[name]
		if !ok {
			continue
		}
		pts := make(plotter.XYs, len(a.Ticks))
		for i := range a.Ticks {
			pts[i] = plotter.XY{X: a.Ticks[i], Y: a.Output[i]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build %s line: %w", name, err)
		}
		line.Color = axisColors[name]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(name, line)
	}

	if err := p.Save(12*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}
