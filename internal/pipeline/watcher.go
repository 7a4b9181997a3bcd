package pipeline

import (
	"context"
	"time"

	"github.com/parklands-data/invasive.report/internal/geo"
	"github.com/parklands-data/invasive.report/internal/timeutil"
)

// Watcher re-runs a location analysis on a fixed interval, for
// long-running early-warning coverage of a site of concern.
type Watcher struct {
	pipeline *Pipeline
	interval time.Duration
	alertAt  RiskLevel

	// Clock supplies the sweep schedule and reference dates. Swap in a
	// mock for tests.
	Clock timeutil.Clock

	// OnReport receives every completed sweep, alerting or not.
	OnReport func(*WatchReport)
}

// NewWatcher builds a watcher that sweeps every interval and grades
// against alertAt.
func NewWatcher(p *Pipeline, interval time.Duration, alertAt RiskLevel) *Watcher {
	return &Watcher{
		pipeline: p,
		interval: interval,
		alertAt:  alertAt,
		Clock:    timeutil.RealClock{},
	}
}

// Run sweeps pt immediately and then on every tick until ctx is
// cancelled. A failed sweep is logged and the loop keeps going; only
// cancellation ends it.
func (w *Watcher) Run(ctx context.Context, pt geo.Point) error {
	ticker := w.Clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		refDate := w.Clock.Now().UTC().Truncate(24 * time.Hour)
		report, err := w.pipeline.MonitorLocation(ctx, pt, refDate, w.alertAt)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.pipeline.logf("watch sweep at (%.4f, %.4f) failed: %v", pt.Lon, pt.Lat, err)
		} else if w.OnReport != nil {
			w.OnReport(report)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}
	}
}
