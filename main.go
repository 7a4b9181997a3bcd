package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/parklands-data/invasive.report/internal/advisory"
	"github.com/parklands-data/invasive.report/internal/api"
	"github.com/parklands-data/invasive.report/internal/config"
	"github.com/parklands-data/invasive.report/internal/geo"
	"github.com/parklands-data/invasive.report/internal/httputil"
	"github.com/parklands-data/invasive.report/internal/pipeline"
	"github.com/parklands-data/invasive.report/internal/plot"
	"github.com/parklands-data/invasive.report/internal/security"
	"github.com/parklands-data/invasive.report/internal/spectral"
	"github.com/parklands-data/invasive.report/internal/store"
	"github.com/parklands-data/invasive.report/internal/validation"
	"github.com/parklands-data/invasive.report/internal/version"
)

const usage = `Usage: invasive-report <command> [flags]

Commands:
  serve      run the HTTP API
  detect     run all detection modes at one location
  hotspots   scan a region for hotspot cells and clusters
  validate   score predictions against ground truth
  migrate    manage the database schema (up, down, version)
  version    print build information

Run 'invasive-report <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "detect":
		runDetect(os.Args[2:])
	case "hotspots":
		runHotspots(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		fmt.Printf("invasive-report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}
}

// loadConfig reads the optional tuning file. An empty path yields the
// built-in defaults.
func loadConfig(path string) *config.TuningConfig {
	if path == "" {
		return config.EmptyTuningConfig()
	}
	cfg, err := config.LoadTuningConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// loadProvider replays an archived readings CSV into a provider.
func loadProvider(path string) spectral.Provider {
	if path == "" {
		log.Fatal("A readings file is required (-readings)")
	}
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("Failed to open readings file: %v", err)
	}
	defer f.Close()

	p, err := spectral.LoadCSV(f)
	if err != nil {
		log.Fatalf("Failed to load readings: %v", err)
	}
	return p
}

func buildPipeline(cfg *config.TuningConfig, provider spectral.Provider, st *store.Store) *pipeline.Pipeline {
	var client *advisory.Client
	if url := cfg.GetAdvisoryURL(); url != "" {
		client = advisory.NewClient(url, httputil.NewStandardClient(&http.Client{Timeout: cfg.GetAdvisoryTimeout()}))
	}

	p, err := pipeline.New(pipeline.Config{
		Provider:      provider,
		DetectParams:  cfg.DetectParams(),
		HotspotParams: cfg.HotspotParams(),
		Advisory:      client,
		Store:         st,
	})
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	return p
}

func openStore(path string) *store.Store {
	if path == "" {
		return nil
	}
	st, err := store.Open(path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	if err := st.MigrateUp(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	return st
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
}

func parseDateFlag(v string) time.Time {
	if v == "" {
		return time.Now().UTC().Truncate(24 * time.Hour)
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		log.Fatalf("Invalid date %q: %v", v, err)
	}
	return t
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var (
		listen     = fs.String("listen", "", "Listen address (default from config)")
		configPath = fs.String("config", "", "Path to tuning config JSON")
		readings   = fs.String("readings", "", "Path to archived readings CSV")
		dbPath     = fs.String("db", "", "Path to the SQLite database (empty disables persistence)")
	)
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	provider := loadProvider(*readings)
	st := openStore(*dbPath)
	if st != nil {
		defer st.Close()
	}

	p := buildPipeline(cfg, provider, st)
	fw := validation.NewFramework(cfg.GetMatchStrategy())
	srv := api.NewServer(p, provider, st, fw, cfg)

	addr := *listen
	if addr == "" {
		addr = cfg.GetListenAddr()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    addr,
		Handler: api.LoggingMiddleware(srv.ServeMux()),
	}

	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func runDetect(args []string) {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	var (
		configPath = fs.String("config", "", "Path to tuning config JSON")
		readings   = fs.String("readings", "", "Path to archived readings CSV")
		dbPath     = fs.String("db", "", "Path to the SQLite database (empty disables persistence)")
		lon        = fs.Float64("lon", 0, "Longitude of the site")
		lat        = fs.Float64("lat", 0, "Latitude of the site")
		date       = fs.String("date", "", "Reference date (YYYY-MM-DD, default today)")
		trendPath  = fs.String("trend", "", "Write an NDVI trend plot of the baseline window to this path")
	)
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	st := openStore(*dbPath)
	if st != nil {
		defer st.Close()
	}
	provider := loadProvider(*readings)
	p := buildPipeline(cfg, provider, st)

	site := geo.Point{Lon: *lon, Lat: *lat}
	refDate := parseDateFlag(*date)
	report, err := p.DetectAtLocation(context.Background(), site, refDate)
	if err != nil {
		log.Fatalf("Detection failed: %v", err)
	}
	printJSON(report)

	if *trendPath != "" {
		if err := security.ValidateExportPath(*trendPath); err != nil {
			log.Fatalf("Invalid trend path: %v", err)
		}
		if err := writeNDVITrend(provider, cfg, site, refDate, *trendPath); err != nil {
			log.Fatalf("Failed to write NDVI trend: %v", err)
		}
		log.Printf("Wrote NDVI trend to %s", *trendPath)
	}
}

func writeNDVITrend(provider spectral.Provider, cfg *config.TuningConfig, site geo.Point, refDate time.Time, path string) error {
	start := refDate.AddDate(0, 0, -cfg.GetBaselineWindowDays())
	samples, err := provider.SamplesInRange(context.Background(), site, start, refDate, cfg.GetSampleIntervalDays())
	if err != nil {
		return fmt.Errorf("failed to sample imagery: %w", err)
	}
	series := make([]plot.TrendPoint, 0, len(samples))
	for _, s := range samples {
		series = append(series, plot.TrendPoint{Date: s.AcquiredAt, NDVI: s.NDVI()})
	}
	title := fmt.Sprintf("NDVI %s to %s", start.Format("2006-01-02"), refDate.Format("2006-01-02"))
	return plot.NDVITrend(path, title, series)
}

func runHotspots(args []string) {
	fs := flag.NewFlagSet("hotspots", flag.ExitOnError)
	var (
		configPath = fs.String("config", "", "Path to tuning config JSON")
		readings   = fs.String("readings", "", "Path to archived readings CSV")
		minLon     = fs.Float64("min-lon", 0, "West edge of the region")
		minLat     = fs.Float64("min-lat", 0, "South edge of the region")
		maxLon     = fs.Float64("max-lon", 0, "East edge of the region")
		maxLat     = fs.Float64("max-lat", 0, "North edge of the region")
		date       = fs.String("date", "", "Reference date (YYYY-MM-DD, default today)")
		plotPath   = fs.String("plot", "", "Write a PNG hotspot map to this path")
	)
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	p := buildPipeline(cfg, loadProvider(*readings), nil)

	bounds := geo.Bounds{MinLon: *minLon, MinLat: *minLat, MaxLon: *maxLon, MaxLat: *maxLat}
	report, err := p.MonitorRegion(context.Background(), bounds, parseDateFlag(*date))
	if err != nil {
		log.Fatalf("Region scan failed: %v", err)
	}
	printJSON(report)

	if *plotPath != "" {
		if err := security.ValidateExportPath(*plotPath); err != nil {
			log.Fatalf("Invalid plot path: %v", err)
		}
		title := fmt.Sprintf("Hotspots %s", report.Date.Format("2006-01-02"))
		if err := plot.HotspotMap(*plotPath, title, report.Hotspots, report.Clusters); err != nil {
			log.Fatalf("Failed to write hotspot map: %v", err)
		}
		log.Printf("Wrote hotspot map to %s", *plotPath)
	}
}

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	var (
		configPath  = fs.String("config", "", "Path to tuning config JSON")
		groundTruth = fs.String("ground-truth", "", "Path to ground truth CSV")
		predictions = fs.String("predictions", "", "Path to predictions JSON (array)")
	)
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	if *groundTruth == "" || *predictions == "" {
		log.Fatal("Both -ground-truth and -predictions are required")
	}

	fw := validation.NewFramework(cfg.GetMatchStrategy())

	gt, err := os.Open(*groundTruth)
	if err != nil {
		log.Fatalf("Failed to open ground truth file: %v", err)
	}
	n, err := fw.LoadCSV(gt)
	gt.Close()
	if err != nil {
		log.Fatalf("Failed to load ground truth: %v", err)
	}
	log.Printf("Loaded %d ground truth points", n)

	data, err := os.ReadFile(*predictions)
	if err != nil {
		log.Fatalf("Failed to read predictions file: %v", err)
	}
	var preds []validation.Prediction
	if err := json.Unmarshal(data, &preds); err != nil {
		log.Fatalf("Failed to parse predictions: %v", err)
	}

	matched := 0
	for _, pred := range preds {
		if r := fw.Validate(pred, cfg.GetToleranceMeters(), cfg.GetToleranceDays()); r != nil {
			matched++
		}
	}
	log.Printf("Matched %d of %d predictions", matched, len(preds))

	printJSON(map[string]interface{}{
		"metrics":       fw.ComputeMetrics(),
		"by_confidence": fw.AccuracyByConfidence(),
		"by_distance":   fw.AccuracyByDistance(),
		"by_season":     fw.AccuracyBySeason(),
	})
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", "invasive.db", "Path to the SQLite database")
	fs.Parse(args)

	if fs.NArg() < 1 {
		log.Fatal("Usage: invasive-report migrate [-db path] <up|down|version>")
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()

	switch fs.Arg(0) {
	case "up":
		if err := st.MigrateUp(); err != nil {
			log.Fatalf("Migration up failed: %v", err)
		}
		log.Println("All migrations applied")
	case "down":
		if err := st.MigrateDown(); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("All migrations rolled back")
	case "version":
		version, dirty, err := st.MigrateVersion()
		if err != nil {
			log.Fatalf("Failed to read schema version: %v", err)
		}
		log.Printf("Schema version %d (dirty=%v)", version, dirty)
	default:
		log.Fatalf("Unknown migrate action: %s", fs.Arg(0))
	}
}
