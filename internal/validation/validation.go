// Package validation scores detection output against human ground-truth
// observations and computes aggregate accuracy metrics.
package validation

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/parklands-data/invasive.report/internal/geo"
	"github.com/parklands-data/invasive.report/internal/monitoring"
)

// GroundTruthPoint is a trusted field observation of invasive presence or
// absence at a location.
type GroundTruthPoint struct {
	Point           geo.Point `json:"point"`
	ObservedAt      time.Time `json:"observed_at"`
	InvasivePresent bool      `json:"invasive_present"`
	Species         string    `json:"species,omitempty"`
	CoveragePercent float64   `json:"coverage_percent,omitempty"`
	Observer        string    `json:"observer"`
	Notes           string    `json:"notes,omitempty"`

	// Confidence is the observer's own confidence in the record. Zero is
	// treated as unset and defaults to 1.0 on ingestion.
	Confidence float64 `json:"confidence"`
}

// Prediction is one model output to be scored.
type Prediction struct {
	Point      geo.Point `json:"point"`
	Date       time.Time `json:"date"`
	Detected   bool      `json:"detected"`
	Confidence float64   `json:"confidence"`
	Species    string    `json:"species,omitempty"`
}

// Result pairs a prediction with its matched ground truth.
type Result struct {
	GroundTruth    bool      `json:"ground_truth"`
	Predicted      bool      `json:"predicted"`
	Confidence     float64   `json:"confidence"`
	DetectionDate  time.Time `json:"detection_date"`
	DistanceMeters float64   `json:"distance_meters"`
	DateGapDays    float64   `json:"date_gap_days"`
	Observer       string    `json:"observer,omitempty"`

	// SpeciesMatch is nil when either side omitted a species label.
	SpeciesMatch *bool `json:"species_match,omitempty"`
}

// Correct reports whether the prediction agreed with the ground truth.
func (r Result) Correct() bool { return r.GroundTruth == r.Predicted }

// MatchStrategy selects among multiple ground-truth points that satisfy
// both tolerances for one prediction.
type MatchStrategy int

const (
	// MatchFirst takes the first qualifying point in insertion order.
	// This reproduces the historical behaviour; with overlapping ground
	// truth the outcome depends on ingestion order.
	MatchFirst MatchStrategy = iota

	// MatchNearest takes the qualifying point spatially closest to the
	// prediction.
	MatchNearest

	// MatchNearestDate takes the qualifying point with the smallest date
	// gap to the prediction.
	MatchNearestDate
)

func (s MatchStrategy) String() string {
	switch s {
	case MatchFirst:
		return "first"
	case MatchNearest:
		return "nearest"
	case MatchNearestDate:
		return "nearest-date"
	default:
		return fmt.Sprintf("MatchStrategy(%d)", int(s))
	}
}

// Framework accumulates ground truth and validation results. It is safe
// for concurrent use.
type Framework struct {
	mu       sync.Mutex
	points   []GroundTruthPoint
	results  []Result
	strategy MatchStrategy

	// Logf receives diagnostic output; defaults to the package logger.
	Logf func(format string, v ...interface{})
}

// NewFramework returns an empty framework using the given match strategy.
func NewFramework(strategy MatchStrategy) *Framework {
	return &Framework{strategy: strategy, Logf: monitoring.Logf}
}

func (f *Framework) logf(format string, v ...interface{}) {
	if f.Logf != nil {
		f.Logf(format, v...)
	}
}

// AddGroundTruth stores an observation. A zero observer confidence is
// normalized to 1.0.
func (f *Framework) AddGroundTruth(p GroundTruthPoint) {
	if p.Confidence == 0 {
		p.Confidence = 1.0
	}
	f.mu.Lock()
	f.points = append(f.points, p)
	f.mu.Unlock()
}

// GroundTruthCount returns the number of stored observations.
func (f *Framework) GroundTruthCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

// Validate matches pred against stored ground truth within the given
// tolerances (inclusive on both). It returns nil when no point qualifies;
// absence means "cannot validate", not a negative result. On a match the
// result is recorded and returned.
func (f *Framework) Validate(pred Prediction, toleranceMeters float64, toleranceDays int) *Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	best := -1
	var bestDist, bestGap float64
	for i, gt := range f.points {
		dist := geo.Haversine(pred.Point, gt.Point)
		gap := math.Abs(pred.Date.Sub(gt.ObservedAt).Hours()) / 24
		if dist > toleranceMeters || gap > float64(toleranceDays) {
			continue
		}

		switch f.strategy {
		case MatchNearest:
			if best == -1 || dist < bestDist {
				best, bestDist, bestGap = i, dist, gap
			}
		case MatchNearestDate:
			if best == -1 || gap < bestGap {
				best, bestDist, bestGap = i, dist, gap
			}
		default: // MatchFirst
			best, bestDist, bestGap = i, dist, gap
		}
		if f.strategy == MatchFirst {
			break
		}
	}

	if best == -1 {
		return nil
	}

	gt := f.points[best]
	r := Result{
		GroundTruth:    gt.InvasivePresent,
		Predicted:      pred.Detected,
		Confidence:     pred.Confidence,
		DetectionDate:  pred.Date,
		DistanceMeters: bestDist,
		DateGapDays:    bestGap,
		Observer:       gt.Observer,
	}
	if pred.Species != "" && gt.Species != "" {
		m := speciesMatch(pred.Species, gt.Species)
		r.SpeciesMatch = &m
	}

	f.results = append(f.results, r)
	f.logf("validated prediction at (%.4f, %.4f): gt=%v pred=%v dist=%.1fm",
		pred.Point.Lon, pred.Point.Lat, r.GroundTruth, r.Predicted, r.DistanceMeters)
	return &r
}

// speciesMatch is a case-insensitive substring containment check in either
// direction, so "tamarix" matches "Tamarix ramosissima".
func speciesMatch(a, b string) bool {
	la, lb := strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if la == "" || lb == "" {
		return false
	}
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

// Results returns a copy of the accumulated validation results.
func (f *Framework) Results() []Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Result, len(f.results))
	copy(out, f.results)
	return out
}

// Metrics is a confusion-matrix summary of the accumulated results.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	TP        int     `json:"tp"`
	TN        int     `json:"tn"`
	FP        int     `json:"fp"`
	FN        int     `json:"fn"`
	Count     int     `json:"count"`

	// SpeciesAccuracy covers only results that recorded a species match;
	// nil when none did.
	SpeciesAccuracy *float64 `json:"species_accuracy,omitempty"`
}

// ComputeMetrics aggregates all accumulated results. All ratio
// denominators are guarded; an empty result list yields zeros.
func (f *Framework) ComputeMetrics() Metrics {
	f.mu.Lock()
	defer f.mu.Unlock()

	var m Metrics
	speciesTotal, speciesRight := 0, 0
	for _, r := range f.results {
		switch {
		case r.GroundTruth && r.Predicted:
			m.TP++
		case !r.GroundTruth && !r.Predicted:
			m.TN++
		case !r.GroundTruth && r.Predicted:
			m.FP++
		default:
			m.FN++
		}
		if r.SpeciesMatch != nil {
			speciesTotal++
			if *r.SpeciesMatch {
				speciesRight++
			}
		}
	}

	m.Count = len(f.results)
	m.Accuracy = ratio(m.TP+m.TN, m.Count)
	m.Precision = ratio(m.TP, m.TP+m.FP)
	m.Recall = ratio(m.TP, m.TP+m.FN)
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	if speciesTotal > 0 {
		sa := ratio(speciesRight, speciesTotal)
		m.SpeciesAccuracy = &sa
	}
	return m
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// BinStat is per-bin accuracy over a partition of the result list.
type BinStat struct {
	Accuracy float64 `json:"accuracy"`
	Count    int     `json:"count"`
}

// AccuracyByConfidence partitions results into fixed prediction-confidence
// bins. Empty bins are omitted.
func (f *Framework) AccuracyByConfidence() map[string]BinStat {
	return f.binned(func(r Result) string {
		edges := []float64{0.25, 0.5, 0.75}
		labels := []string{"0.00-0.25", "0.25-0.50", "0.50-0.75", "0.75-1.00"}
		for i, e := range edges {
			if r.Confidence < e {
				return labels[i]
			}
		}
		return labels[3]
	})
}

// AccuracyByDistance partitions results into 25m distance bins up to 100m.
// Matches beyond 100m (possible with a wider tolerance) are omitted.
func (f *Framework) AccuracyByDistance() map[string]BinStat {
	return f.binned(func(r Result) string {
		switch {
		case r.DistanceMeters < 25:
			return "0-25m"
		case r.DistanceMeters < 50:
			return "25-50m"
		case r.DistanceMeters < 75:
			return "50-75m"
		case r.DistanceMeters < 100:
			return "75-100m"
		default:
			return ""
		}
	})
}

// AccuracyBySeason partitions results by the detection date's season.
func (f *Framework) AccuracyBySeason() map[string]BinStat {
	return f.binned(func(r Result) string {
		switch r.DetectionDate.Month() {
		case time.March, time.April, time.May:
			return "spring"
		case time.June, time.July, time.August:
			return "summer"
		case time.September, time.October, time.November:
			return "fall"
		default:
			return "winter"
		}
	})
}

// binned groups results by key and reports per-bin accuracy. A result
// keyed to the empty string is left out.
func (f *Framework) binned(key func(Result) string) map[string]BinStat {
	f.mu.Lock()
	defer f.mu.Unlock()

	counts := make(map[string]int)
	correct := make(map[string]int)
	for _, r := range f.results {
		k := key(r)
		if k == "" {
			continue
		}
		counts[k]++
		if r.Correct() {
			correct[k]++
		}
	}

	out := make(map[string]BinStat, len(counts))
	for k, n := range counts {
		out[k] = BinStat{Accuracy: ratio(correct[k], n), Count: n}
	}
	return out
}
