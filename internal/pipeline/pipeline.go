// Package pipeline sequences the detection stages for one site or region
// and merges their findings into an overall assessment.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/parklands-data/invasive.report/internal/advisory"
	"github.com/parklands-data/invasive.report/internal/confidence"
	"github.com/parklands-data/invasive.report/internal/detect"
	"github.com/parklands-data/invasive.report/internal/front"
	"github.com/parklands-data/invasive.report/internal/geo"
	"github.com/parklands-data/invasive.report/internal/hotspot"
	"github.com/parklands-data/invasive.report/internal/monitoring"
	"github.com/parklands-data/invasive.report/internal/spectral"
	"github.com/parklands-data/invasive.report/internal/store"
)

// contextRadiusMeters bounds the mini region scanned around a site to
// decide whether the area as a whole is flaring up.
const contextRadiusMeters = 1000

// Config assembles a pipeline. Provider is required; Advisory, Store and
// Policy are optional.
type Config struct {
	Provider      spectral.Provider
	DetectParams  detect.Params
	HotspotParams hotspot.Params
	Advisory      *advisory.Client
	Store         *store.Store
	Policy        confidence.Policy
}

// Pipeline runs the full analysis flow.
type Pipeline struct {
	detector *detect.Detector
	scanner  *hotspot.Scanner
	tracker  *front.Tracker
	advisory *advisory.Client
	store    *store.Store
	policy   confidence.Policy

	// Logf receives diagnostic output; defaults to the package logger.
	Logf func(format string, v ...interface{})
}

// New builds a pipeline from cfg.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("pipeline requires a sample provider")
	}
	policy := cfg.Policy
	if policy == nil {
		policy = confidence.DefaultWeighted()
	}

	p := &Pipeline{
		detector: detect.NewDetector(cfg.Provider, cfg.DetectParams),
		tracker:  front.NewTracker(cfg.Provider),
		advisory: cfg.Advisory,
		store:    cfg.Store,
		policy:   policy,
		Logf:     monitoring.Logf,
	}
	p.scanner = hotspot.NewScanner(p.detector, cfg.HotspotParams)

	p.detector.Logf = func(format string, v ...interface{}) { p.logf(format, v...) }
	p.tracker.Logf = p.detector.Logf
	p.scanner.Logf = p.detector.Logf
	return p, nil
}

func (p *Pipeline) logf(format string, v ...interface{}) {
	if p.Logf != nil {
		p.Logf(format, v...)
	}
}

// AdvisorySummary is what survives of the external advisory call in a
// report.
type AdvisorySummary struct {
	Confidence float64  `json:"confidence"`
	Detected   bool     `json:"detected"`
	Species    []string `json:"species,omitempty"`
	Reasoning  string   `json:"reasoning,omitempty"`
	Degraded   bool     `json:"degraded,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// LocationReport merges every detection mode for one site.
type LocationReport struct {
	Point    geo.Point                 `json:"point"`
	Date     time.Time                 `json:"date"`
	Sudden   []detect.Event            `json:"sudden_events"`
	Gradual  []detect.Event            `json:"gradual_events"`
	Seasonal []detect.Event            `json:"seasonal_events"`
	Rapid    *detect.RapidChangeReport `json:"rapid_changes,omitempty"`
	Hotspots []hotspot.Hotspot         `json:"nearby_hotspots,omitempty"`
	Advisory *AdvisorySummary          `json:"advisory,omitempty"`

	CombinedConfidence float64 `json:"combined_confidence"`
	InvasiveDetected   bool    `json:"invasive_detected"`
}

// Events returns all change events in the report.
func (r *LocationReport) Events() []detect.Event {
	out := make([]detect.Event, 0, len(r.Sudden)+len(r.Gradual)+len(r.Seasonal))
	out = append(out, r.Sudden...)
	out = append(out, r.Gradual...)
	out = append(out, r.Seasonal...)
	return out
}

// DetectAtLocation runs all detection modes at pt for refDate, scans the
// immediate surroundings for corroborating hotspots, consults the
// advisory service when configured, and combines everything through the
// confidence policy. Provider failures abort; an advisory failure only
// degrades the report.
func (p *Pipeline) DetectAtLocation(ctx context.Context, pt geo.Point, refDate time.Time) (*LocationReport, error) {
	report := &LocationReport{Point: pt, Date: refDate}
	params := p.detector.Params()

	var err error
	report.Sudden, err = p.detector.Anomalies(ctx, pt, refDate, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("sudden-change detection: %w", err)
	}

	trendStart := refDate.AddDate(0, 0, -3*params.GradualWindowDays)
	report.Gradual, err = p.detector.GradualTrend(ctx, pt, trendStart, refDate, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("gradual-trend detection: %w", err)
	}

	report.Seasonal, err = p.detector.PhenologicalAnomalies(ctx, pt, refDate.Year(), params.HistoricalYears)
	if err != nil {
		return nil, fmt.Errorf("phenological detection: %w", err)
	}

	rapid, err := p.detector.RapidChanges(ctx, pt, refDate, 30, 30, params.SampleIntervalDays)
	if err != nil {
		return nil, fmt.Errorf("rapid-change detection: %w", err)
	}
	report.Rapid = rapid

	report.Hotspots, err = p.scanner.Scan(ctx, contextBounds(pt), refDate)
	if err != nil {
		return nil, fmt.Errorf("context scan: %w", err)
	}

	if p.advisory != nil {
		report.Advisory = p.consultAdvisory(ctx, report)
	}

	evidence := confidence.Evidence{
		SpectralConfidence: maxConfidence(report.Sudden),
		TrendDetected:      len(report.Gradual) > 0,
		HotspotNearby:      len(report.Hotspots) > 0,
	}
	if report.Advisory != nil {
		evidence.AdvisoryConfidence = report.Advisory.Confidence
	}
	report.CombinedConfidence = p.policy.Combine(evidence)
	report.InvasiveDetected = report.CombinedConfidence > confidence.DetectionThreshold

	if p.store != nil {
		for _, ev := range report.Events() {
			if _, err := p.store.InsertEvent(ctx, ev); err != nil {
				return nil, fmt.Errorf("persist event: %w", err)
			}
		}
	}

	p.logf("location report (%.4f, %.4f): %d sudden, %d gradual, %d seasonal, combined %.2f",
		pt.Lon, pt.Lat, len(report.Sudden), len(report.Gradual), len(report.Seasonal), report.CombinedConfidence)
	return report, nil
}

// consultAdvisory calls the advisory service and folds the response into
// a summary. Failures are reported in the summary, never as errors.
func (p *Pipeline) consultAdvisory(ctx context.Context, report *LocationReport) *AdvisorySummary {
	findings := advisory.Findings{
		Point:          report.Point,
		Date:           report.Date,
		SuddenEvents:   len(report.Sudden),
		GradualEvents:  len(report.Gradual),
		SeasonalEvents: len(report.Seasonal),
		MaxMagnitude:   maxMagnitude(report.Events()),
	}
	for _, ev := range report.Sudden {
		findings.AffectedBands = append(findings.AffectedBands, ev.AffectedBands...)
	}

	a, err := p.advisory.Assess(ctx, findings)
	if err != nil {
		p.logf("advisory call failed: %v", err)
		return &AdvisorySummary{Error: err.Error()}
	}

	if s, ok := a.Structured(); ok {
		return &AdvisorySummary{
			Confidence: s.Confidence,
			Detected:   s.Detected,
			Species:    s.Species,
			Reasoning:  s.Reasoning,
		}
	}
	fb, _ := a.Fallback()
	return &AdvisorySummary{Confidence: fb.Confidence, Degraded: true}
}

// RegionReport is the outcome of a regional hotspot sweep.
type RegionReport struct {
	Bounds   geo.Bounds        `json:"bounds"`
	Date     time.Time         `json:"date"`
	Hotspots []hotspot.Hotspot `json:"hotspots"`
	Clusters []hotspot.Cluster `json:"clusters"`
}

// MonitorRegion grids bounds, flags hotspot cells and clusters them.
func (p *Pipeline) MonitorRegion(ctx context.Context, bounds geo.Bounds, refDate time.Time) (*RegionReport, error) {
	hotspots, err := p.scanner.Scan(ctx, bounds, refDate)
	if err != nil {
		return nil, err
	}
	return &RegionReport{
		Bounds:   bounds,
		Date:     refDate,
		Hotspots: hotspots,
		Clusters: p.scanner.Cluster(hotspots),
	}, nil
}

// TrackProgression samples the perimeter of a known infestation for
// directional spread.
func (p *Pipeline) TrackProgression(ctx context.Context, center geo.Point, start, end time.Time, radiusMeters float64, directions int) (*front.Report, error) {
	return p.tracker.Track(ctx, center, start, end, radiusMeters, directions)
}

// contextBounds is a box of contextRadiusMeters half-width around pt.
func contextBounds(pt geo.Point) geo.Bounds {
	sw := geo.Offset(pt, -contextRadiusMeters, -contextRadiusMeters)
	ne := geo.Offset(pt, contextRadiusMeters, contextRadiusMeters)
	return geo.Bounds{MinLon: sw.Lon, MinLat: sw.Lat, MaxLon: ne.Lon, MaxLat: ne.Lat}
}

func maxConfidence(events []detect.Event) float64 {
	var max float64
	for _, ev := range events {
		if ev.Confidence > max {
			max = ev.Confidence
		}
	}
	return max
}

func maxMagnitude(events []detect.Event) float64 {
	var max float64
	for _, ev := range events {
		if ev.Magnitude > max {
			max = ev.Magnitude
		}
	}
	return max
}
