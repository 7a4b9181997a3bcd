package pipeline

import (
	"context"
	"time"

	"github.com/parklands-data/invasive.report/internal/geo"
)

// RiskLevel grades a combined confidence for alerting.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Risk thresholds on the combined confidence.
const (
	mediumRiskAt = 0.3
	highRiskAt   = 0.6
)

// RiskFor grades a combined confidence.
func RiskFor(combined float64) RiskLevel {
	switch {
	case combined >= highRiskAt:
		return RiskHigh
	case combined >= mediumRiskAt:
		return RiskMedium
	default:
		return RiskLow
	}
}

// meetsOrExceeds reports whether level is at least threshold.
func (l RiskLevel) meetsOrExceeds(threshold RiskLevel) bool {
	rank := map[RiskLevel]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2}
	return rank[l] >= rank[threshold]
}

// WatchReport is a LocationReport graded for alerting.
type WatchReport struct {
	LocationReport
	Risk           RiskLevel `json:"risk"`
	AlertTriggered bool      `json:"alert_triggered"`
}

// MonitorLocation runs a full location analysis and grades the outcome
// against alertAt. Use this for scheduled early-warning sweeps of sites
// of concern.
func (p *Pipeline) MonitorLocation(ctx context.Context, pt geo.Point, refDate time.Time, alertAt RiskLevel) (*WatchReport, error) {
	report, err := p.DetectAtLocation(ctx, pt, refDate)
	if err != nil {
		return nil, err
	}

	w := &WatchReport{
		LocationReport: *report,
		Risk:           RiskFor(report.CombinedConfidence),
	}
	w.AlertTriggered = w.Risk.meetsOrExceeds(alertAt)
	if w.AlertTriggered {
		p.logf("ALERT: %s risk at (%.4f, %.4f), combined confidence %.2f",
			w.Risk, pt.Lon, pt.Lat, report.CombinedConfidence)
	}
	return w, nil
}
