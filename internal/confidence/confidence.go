// Package confidence combines evidence from the detection sources into a
// single invasion likelihood. The weighting lives behind a policy so it
// can be tuned and tested apart from the detectors.
package confidence

// Evidence is the numeric input to a policy. Boolean observations stay
// boolean here; turning them into numbers is the policy's job, so the
// conversion is explicit and in one place.
type Evidence struct {
	// SpectralConfidence is the strongest sudden-change event confidence,
	// 0 to 1; 0 when no sudden event fired.
	SpectralConfidence float64

	// TrendDetected reports whether a gradual greening trend was found.
	TrendDetected bool

	// HotspotNearby reports whether a regional scan flagged the area.
	HotspotNearby bool

	// AdvisoryConfidence is the external advisory likelihood, 0 to 100.
	AdvisoryConfidence float64
}

// Policy reduces evidence to a combined likelihood in [0, 1].
type Policy interface {
	Combine(e Evidence) float64
}

// Weighted is the default policy: a weighted sum of the four sources,
// with boolean observations mapped to fixed pseudo-confidences.
type Weighted struct {
	SpectralWeight float64
	TrendWeight    float64
	HotspotWeight  float64
	AdvisoryWeight float64

	// Pseudo-confidences for the boolean sources.
	TrendPresent   float64
	TrendAbsent    float64
	HotspotPresent float64
	HotspotAbsent  float64
}

// DefaultWeighted returns the standard weighting: spectral and trend
// evidence dominate, regional context and the advisory opinion temper.
func DefaultWeighted() Weighted {
	return Weighted{
		SpectralWeight: 0.3,
		TrendWeight:    0.3,
		HotspotWeight:  0.2,
		AdvisoryWeight: 0.2,
		TrendPresent:   0.8,
		TrendAbsent:    0.2,
		HotspotPresent: 0.7,
		HotspotAbsent:  0.3,
	}
}

// Combine implements Policy.
func (w Weighted) Combine(e Evidence) float64 {
	trend := w.TrendAbsent
	if e.TrendDetected {
		trend = w.TrendPresent
	}
	hotspot := w.HotspotAbsent
	if e.HotspotNearby {
		hotspot = w.HotspotPresent
	}

	score := w.SpectralWeight*clamp01(e.SpectralConfidence) +
		w.TrendWeight*trend +
		w.HotspotWeight*hotspot +
		w.AdvisoryWeight*clamp01(e.AdvisoryConfidence/100)
	return clamp01(score)
}

// DetectionThreshold is the combined score above which the pipeline
// reports an overall detection.
const DetectionThreshold = 0.5

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
