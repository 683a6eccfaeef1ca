package telemetry

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/telemetry-gui/internal/httputil"
)

// AttachAdminRoutes registers engine debug pages under /debug/ on mux.
func (e *Engine) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Viewer attached", func() any { return e.channel.Connected() })
	debug.KVFunc("Pacer state", func() any { return e.pacer.State().String() })
	debug.KVFunc("Measured period (ms)", func() any { return fmt.Sprintf("%.1f", e.monitor.Measured()) })

	debug.HandleFunc("telemetry", "telemetry engine counters (JSON)", e.handleStats)
	debug.HandleFunc("telemetry-chart", "measured cycle period over time", e.handlePeriodChart)
	debug.HandleSilentFunc("telemetry-reset", e.handleReset)
}

func (e *Engine) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, e.Stats())
}

func (e *Engine) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	e.Reset()
	httputil.WriteJSONOK(w, map[string]string{"status": "reset"})
}

// handlePeriodChart renders measured period and ack latency per sample
// window against the target period.
func (e *Engine) handlePeriodChart(w http.ResponseWriter, r *http.Request) {
	history := e.monitor.History()
	target := float64(e.config.TargetPeriod) / float64(time.Millisecond)

	x := make([]string, len(history))
	measured := make([]opts.LineData, len(history))
	latency := make([]opts.LineData, len(history))
	targets := make([]opts.LineData, len(history))
	for i, s := range history {
		x[i] = s.At.Format("15:04:05")
		measured[i] = opts.LineData{Value: s.MeasuredPeriodMs}
		latency[i] = opts.LineData{Value: s.LatencyMeanMs}
		targets[i] = opts.LineData{Value: target}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Telemetry Cycle Period", Theme: "dark", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Cycle period (ms)", Subtitle: fmt.Sprintf("%d windows of %v", len(history), e.config.SampleInterval)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).
		AddSeries("measured", measured).
		AddSeries("ack latency", latency).
		AddSeries("target", targets)

	page := components.NewPage()
	page.AddCharts(line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
