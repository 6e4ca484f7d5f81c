package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/depth-servo/internal/httputil"
)

// handleTicksChart renders the command outputs and target position of the
// retained ticks as an HTML line chart. Query params:
//   - last (optional) limits the chart to the newest N ticks
func (ws *WebServer) handleTicksChart(w http.ResponseWriter, r *http.Request) {
	statuses := ws.ring.Snapshot()
	if v := r.URL.Query().Get("last"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < len(statuses) {
			statuses = statuses[len(statuses)-n:]
		}
	}
	if len(statuses) == 0 {
		httputil.NotFound(w, "no ticks recorded yet")
		return
	}

	x := make([]string, len(statuses))
	thrust := make([]opts.LineData, len(statuses))
	roll := make([]opts.LineData, len(statuses))
	pitch := make([]opts.LineData, len(statuses))
	targetY := make([]opts.LineData, len(statuses))
	for i, s := range statuses {
		x[i] = strconv.FormatUint(s.Tick, 10)
		thrust[i] = opts.LineData{Value: s.Command.Thrust}
		roll[i] = opts.LineData{Value: s.Command.Roll}
		pitch[i] = opts.LineData{Value: s.Command.Pitch}
		if s.HaveTarget {
			targetY[i] = opts.LineData{Value: s.Target.Y}
		} else {
			targetY[i] = opts.LineData{Value: "-"}
		}
	}

	first, last := statuses[0].Tick, statuses[len(statuses)-1].Tick
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Control ticks", Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{Title: "Actuation commands", Subtitle: fmt.Sprintf("ticks %d-%d", first, last)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tick"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "output"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x).
		AddSeries("thrust", thrust).
		AddSeries("roll", roll).
		AddSeries("pitch", pitch)

	targetLine := charts.NewLine()
	targetLine.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: "Target row (px)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	targetLine.SetXAxis(x).AddSeries("target y", targetY)

	page := components.NewPage()
	page.AddCharts(line, targetLine)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
