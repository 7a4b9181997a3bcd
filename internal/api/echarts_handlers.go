package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/parklands-data/invasive.report/internal/geo"
	"github.com/parklands-data/invasive.report/internal/httputil"
)

// viridis color ramp for visual maps.
var visualMapColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// hotspotChart renders a regional scan (HTML) as a scatter of hotspot
// cells colored by magnitude, with cluster centers overlaid. This is a
// debugging-only endpoint (no auth) for eyeballing a scan without the
// full UI.
// Query params mirror /api/hotspots: min_lon, min_lat, max_lon, max_lat
// and an optional date.
func (s *Server) hotspotChart(w http.ResponseWriter, r *http.Request) {
	bounds, err := parseBounds(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	date, err := parseDate(r, "date")
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid date: %v", err))
		return
	}

	report, err := s.pipeline.MonitorRegion(r.Context(), bounds, date)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("region scan failed: %v", err))
		return
	}
	if len(report.Hotspots) == 0 {
		httputil.NotFound(w, "no hotspots in region")
		return
	}

	cellPts := make([]opts.ScatterData, 0, len(report.Hotspots))
	maxMag := 0.0
	for _, h := range report.Hotspots {
		if h.Magnitude > maxMag {
			maxMag = h.Magnitude
		}
		cellPts = append(cellPts, opts.ScatterData{Value: []interface{}{h.Center.Lon, h.Center.Lat, h.Magnitude}})
	}
	if maxMag == 0 {
		maxMag = 1.0
	}

	clusterPts := make([]opts.ScatterData, 0, len(report.Clusters))
	for _, c := range report.Clusters {
		clusterPts = append(clusterPts, opts.ScatterData{Value: []interface{}{c.Center.Lon, c.Center.Lat, c.AvgMagnitude}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Hotspot Scan", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Hotspot Scan", Subtitle: fmt.Sprintf("date=%s cells=%d clusters=%d", date.Format("2006-01-02"), len(cellPts), len(clusterPts))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: bounds.MinLon, Max: bounds.MaxLon, Name: "Longitude", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: bounds.MinLat, Max: bounds.MaxLat, Name: "Latitude", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxMag),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: visualMapColors},
		}),
	)
	scatter.AddSeries("hotspots", cellPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	scatter.AddSeries("clusters", clusterPts,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 16, Symbol: "diamond"}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}),
	)

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// ndviChart renders the NDVI time series at a point as a line chart.
// Query params: lon, lat, start, end and an optional interval (days).
func (s *Server) ndviChart(w http.ResponseWriter, r *http.Request) {
	if s.provider == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no imagery provider configured")
		return
	}

	lon, lat, ok := parsePoint(r)
	if !ok {
		httputil.BadRequest(w, "lon and lat query parameters are required")
		return
	}
	start, err := parseDate(r, "start")
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid start: %v", err))
		return
	}
	end, err := parseDate(r, "end")
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid end: %v", err))
		return
	}

	samples, err := s.provider.SamplesInRange(r.Context(), geo.Point{Lon: lon, Lat: lat}, start, end, s.cfg.GetSampleIntervalDays())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to sample imagery: %v", err))
		return
	}
	if len(samples) == 0 {
		httputil.NotFound(w, "no imagery in range")
		return
	}

	xs := make([]string, 0, len(samples))
	ys := make([]opts.LineData, 0, len(samples))
	for _, sm := range samples {
		xs = append(xs, sm.AcquiredAt.Format("2006-01-02"))
		ys = append(ys, opts.LineData{Value: sm.NDVI()})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "NDVI Trend", Theme: "dark", Width: "1100px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "NDVI Trend", Subtitle: fmt.Sprintf("lon=%.4f lat=%.4f %s to %s", lon, lat, start.Format("2006-01-02"), end.Format("2006-01-02"))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "NDVI", Min: -1, Max: 1}),
	)
	line.SetXAxis(xs).AddSeries("ndvi", ys, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
