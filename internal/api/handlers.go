package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/parklands-data/invasive.report/internal/detect"
	"github.com/parklands-data/invasive.report/internal/geo"
	"github.com/parklands-data/invasive.report/internal/httputil"
	"github.com/parklands-data/invasive.report/internal/pipeline"
	"github.com/parklands-data/invasive.report/internal/store"
)

func (s *Server) detectAtLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	lon, lat, ok := parsePoint(r)
	if !ok {
		httputil.BadRequest(w, "lon and lat query parameters are required")
		return
	}
	date, err := parseDate(r, "date")
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid date: %v", err))
		return
	}

	report, err := s.pipeline.DetectAtLocation(r.Context(), geo.Point{Lon: lon, Lat: lat}, date)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("detection failed: %v", err))
		return
	}
	httputil.WriteJSONOK(w, report)
}

func (s *Server) scanRegion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

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
	httputil.WriteJSONOK(w, report)
}

func (s *Server) trackFront(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
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

	radius := 500.0
	if v := r.URL.Query().Get("radius"); v != "" {
		radius, err = strconv.ParseFloat(v, 64)
		if err != nil || radius <= 0 {
			httputil.BadRequest(w, "invalid radius")
			return
		}
	}
	directions := 8
	if v := r.URL.Query().Get("directions"); v != "" {
		directions, err = strconv.Atoi(v)
		if err != nil || directions < 1 {
			httputil.BadRequest(w, "invalid directions")
			return
		}
	}

	report, err := s.pipeline.TrackProgression(r.Context(), geo.Point{Lon: lon, Lat: lat}, start, end, radius, directions)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("front tracking failed: %v", err))
		return
	}
	httputil.WriteJSONOK(w, report)
}

func (s *Server) monitorLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	lon, lat, ok := parsePoint(r)
	if !ok {
		httputil.BadRequest(w, "lon and lat query parameters are required")
		return
	}
	date, err := parseDate(r, "date")
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid date: %v", err))
		return
	}

	alertAt := pipeline.RiskMedium
	switch v := r.URL.Query().Get("alert_at"); v {
	case "", "medium":
	case "low":
		alertAt = pipeline.RiskLow
	case "high":
		alertAt = pipeline.RiskHigh
	default:
		httputil.BadRequest(w, fmt.Sprintf("invalid alert_at %q", v))
		return
	}

	report, err := s.pipeline.MonitorLocation(r.Context(), geo.Point{Lon: lon, Lat: lat}, date, alertAt)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("monitoring failed: %v", err))
		return
	}
	httputil.WriteJSONOK(w, report)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}

	filter := store.EventFilter{Category: detect.Category(r.URL.Query().Get("category"))}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid since: %v", err))
			return
		}
		filter.Since = t
	}
	if v := r.URL.Query().Get("until"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid until: %v", err))
			return
		}
		filter.Until = t
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = n
	}

	events, err := s.store.ListEvents(r.Context(), filter)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list events: %v", err))
		return
	}
	httputil.WriteJSONOK(w, events)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"sensitivity":           s.cfg.GetSensitivity(),
		"baseline_window_days":  s.cfg.GetBaselineWindowDays(),
		"sample_interval_days":  s.cfg.GetSampleIntervalDays(),
		"gradual_window_days":   s.cfg.GetGradualWindowDays(),
		"gradual_step_days":     s.cfg.GetGradualStepDays(),
		"slope_threshold":       s.cfg.GetSlopeThreshold(),
		"seasonal_z_threshold":  s.cfg.GetSeasonalZThreshold(),
		"historical_years":      s.cfg.GetHistoricalYears(),
		"grid_size_meters":      s.cfg.GetGridSizeMeters(),
		"hotspot_sensitivity":   s.cfg.GetHotspotSensitivity(),
		"hotspot_baseline_days": s.cfg.GetHotspotBaselineDays(),
		"tolerance_meters":      s.cfg.GetToleranceMeters(),
		"tolerance_days":        s.cfg.GetToleranceDays(),
		"match_strategy":        s.cfg.GetMatchStrategy().String(),
	})
}

// parseBounds reads min_lon, min_lat, max_lon and max_lat query
// parameters.
func parseBounds(r *http.Request) (geo.Bounds, error) {
	var b geo.Bounds
	fields := []struct {
		key string
		dst *float64
	}{
		{"min_lon", &b.MinLon},
		{"min_lat", &b.MinLat},
		{"max_lon", &b.MaxLon},
		{"max_lat", &b.MaxLat},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(r.URL.Query().Get(f.key), 64)
		if err != nil {
			return b, fmt.Errorf("%s query parameter is required", f.key)
		}
		*f.dst = v
	}
	if !b.Valid() {
		return b, fmt.Errorf("bounds are inverted or empty")
	}
	return b, nil
}
