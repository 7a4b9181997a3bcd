package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/parklands-data/invasive.report/internal/spectral"
	"github.com/parklands-data/invasive.report/internal/timeutil"
)

func TestWatcherSweepsOnTicks(t *testing.T) {
	provider := spectral.NewScriptedProvider()
	seedSuddenAnomaly(provider)
	p := quietPipeline(t, Config{Provider: provider})

	clock := timeutil.NewMockClock(refDate)
	w := NewWatcher(p, time.Hour, RiskLow)
	w.Clock = clock

	reports := make(chan *WatchReport, 4)
	w.OnReport = func(r *WatchReport) { reports <- r }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, site) }()

	// The first sweep happens before any tick.
	first := <-reports
	if !first.AlertTriggered {
		t.Error("seeded anomaly should trigger a low-threshold alert")
	}

	// Each tick drives another sweep.
	clock.Advance(time.Hour)
	second := <-reports
	if second.Risk != first.Risk {
		t.Errorf("risk changed between identical sweeps: %v then %v", first.Risk, second.Risk)
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

func TestWatcherStopsOnCancel(t *testing.T) {
	provider := spectral.NewScriptedProvider()
	p := quietPipeline(t, Config{Provider: provider})

	w := NewWatcher(p, time.Hour, RiskHigh)
	w.Clock = timeutil.NewMockClock(refDate)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx, site); err != context.Canceled {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}
