package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/parklands-data/invasive.report/internal/config"
	"github.com/parklands-data/invasive.report/internal/pipeline"
	"github.com/parklands-data/invasive.report/internal/spectral"
	"github.com/parklands-data/invasive.report/internal/store"
	"github.com/parklands-data/invasive.report/internal/validation"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the detection pipeline over HTTP. The store and
// framework are optional; endpoints that need them return 503 when
// they are not configured.
type Server struct {
	pipeline  *pipeline.Pipeline
	provider  spectral.Provider
	store     *store.Store
	framework *validation.Framework
	cfg       *config.TuningConfig
}

func NewServer(p *pipeline.Pipeline, provider spectral.Provider, st *store.Store, fw *validation.Framework, cfg *config.TuningConfig) *Server {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	return &Server{
		pipeline:  p,
		provider:  provider,
		store:     st,
		framework: fw,
		cfg:       cfg,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/detect", s.detectAtLocation)
	mux.HandleFunc("/api/hotspots", s.scanRegion)
	mux.HandleFunc("/api/front", s.trackFront)
	mux.HandleFunc("/api/monitor", s.monitorLocation)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/validation/ground_truth", s.groundTruth)
	mux.HandleFunc("/api/validation/validate", s.validatePrediction)
	mux.HandleFunc("/api/validation/metrics", s.validationMetrics)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/charts/hotspots", s.hotspotChart)
	mux.HandleFunc("/charts/ndvi", s.ndviChart)
	return mux
}

// parsePoint reads lon and lat query parameters.
func parsePoint(r *http.Request) (lon, lat float64, ok bool) {
	var err error
	lon, err = strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil {
		return 0, 0, false
	}
	lat, err = strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		return 0, 0, false
	}
	return lon, lat, true
}

// parseDate reads a YYYY-MM-DD query parameter, defaulting to today (UTC)
// when absent.
func parseDate(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	return time.Parse("2006-01-02", v)
}
