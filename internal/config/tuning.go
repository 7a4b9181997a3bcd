package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parklands-data/invasive.report/internal/detect"
	"github.com/parklands-data/invasive.report/internal/hotspot"
	"github.com/parklands-data/invasive.report/internal/validation"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for detection tuning.
// The schema matches the /api/params endpoint so the same JSON can be
// used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Spectral detection params
	Sensitivity        *float64 `json:"sensitivity,omitempty"`
	BaselineWindowDays *int     `json:"baseline_window_days,omitempty"`
	SampleIntervalDays *int     `json:"sample_interval_days,omitempty"`
	GradualWindowDays  *int     `json:"gradual_window_days,omitempty"`
	GradualStepDays    *int     `json:"gradual_step_days,omitempty"`
	SlopeThreshold     *float64 `json:"slope_threshold,omitempty"`
	SeasonalZThreshold *float64 `json:"seasonal_z_threshold,omitempty"`
	HistoricalYears    *int     `json:"historical_years,omitempty"`

	// Hotspot params
	GridSizeMeters      *float64 `json:"grid_size_meters,omitempty"`
	HotspotSensitivity  *float64 `json:"hotspot_sensitivity,omitempty"`
	HotspotBaselineDays *int     `json:"hotspot_baseline_days,omitempty"`
	ScanWorkers         *int     `json:"scan_workers,omitempty"`

	// Validation params
	ToleranceMeters *float64 `json:"tolerance_meters,omitempty"`
	ToleranceDays   *int     `json:"tolerance_days,omitempty"`
	MatchStrategy   *string  `json:"match_strategy,omitempty"` // "first", "nearest" or "nearest-date"

	// Advisory params
	AdvisoryURL     *string `json:"advisory_url,omitempty"`
	AdvisoryTimeout *string `json:"advisory_timeout,omitempty"` // duration string like "30s"

	// Risk thresholds for location monitoring
	MediumRiskThreshold *float64 `json:"medium_risk_threshold,omitempty"`
	HighRiskThreshold   *float64 `json:"high_risk_threshold,omitempty"`

	// Server params
	ListenAddr   *string `json:"listen_addr,omitempty"`
	DatabasePath *string `json:"database_path,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.Sensitivity != nil && *c.Sensitivity <= 0 {
		return fmt.Errorf("sensitivity must be positive, got %f", *c.Sensitivity)
	}
	if c.BaselineWindowDays != nil && *c.BaselineWindowDays <= 0 {
		return fmt.Errorf("baseline_window_days must be positive, got %d", *c.BaselineWindowDays)
	}
	if c.SampleIntervalDays != nil && *c.SampleIntervalDays <= 0 {
		return fmt.Errorf("sample_interval_days must be positive, got %d", *c.SampleIntervalDays)
	}
	if c.SlopeThreshold != nil && *c.SlopeThreshold <= 0 {
		return fmt.Errorf("slope_threshold must be positive, got %f", *c.SlopeThreshold)
	}
	if c.GridSizeMeters != nil && *c.GridSizeMeters <= 0 {
		return fmt.Errorf("grid_size_meters must be positive, got %f", *c.GridSizeMeters)
	}
	if c.ScanWorkers != nil && *c.ScanWorkers < 0 {
		return fmt.Errorf("scan_workers must be non-negative, got %d", *c.ScanWorkers)
	}
	if c.ToleranceMeters != nil && *c.ToleranceMeters < 0 {
		return fmt.Errorf("tolerance_meters must be non-negative, got %f", *c.ToleranceMeters)
	}
	if c.ToleranceDays != nil && *c.ToleranceDays < 0 {
		return fmt.Errorf("tolerance_days must be non-negative, got %d", *c.ToleranceDays)
	}

	if c.MatchStrategy != nil && *c.MatchStrategy != "" {
		switch *c.MatchStrategy {
		case "first", "nearest", "nearest-date":
		default:
			return fmt.Errorf("invalid match_strategy %q (want first, nearest or nearest-date)", *c.MatchStrategy)
		}
	}

	// Validate AdvisoryTimeout can be parsed if set
	if c.AdvisoryTimeout != nil && *c.AdvisoryTimeout != "" {
		if _, err := time.ParseDuration(*c.AdvisoryTimeout); err != nil {
			return fmt.Errorf("invalid advisory_timeout '%s': %w", *c.AdvisoryTimeout, err)
		}
	}

	if c.MediumRiskThreshold != nil {
		if *c.MediumRiskThreshold < 0 || *c.MediumRiskThreshold > 1 {
			return fmt.Errorf("medium_risk_threshold must be between 0 and 1, got %f", *c.MediumRiskThreshold)
		}
	}
	if c.HighRiskThreshold != nil {
		if *c.HighRiskThreshold < 0 || *c.HighRiskThreshold > 1 {
			return fmt.Errorf("high_risk_threshold must be between 0 and 1, got %f", *c.HighRiskThreshold)
		}
	}
	if c.MediumRiskThreshold != nil && c.HighRiskThreshold != nil {
		if *c.MediumRiskThreshold >= *c.HighRiskThreshold {
			return fmt.Errorf("medium_risk_threshold %f must be below high_risk_threshold %f",
				*c.MediumRiskThreshold, *c.HighRiskThreshold)
		}
	}

	return nil
}

// GetSensitivity returns the sensitivity value or the default.
func (c *TuningConfig) GetSensitivity() float64 {
	if c.Sensitivity == nil {
		return 2.0 // default
	}
	return *c.Sensitivity
}

// GetBaselineWindowDays returns the baseline_window_days value or the default.
func (c *TuningConfig) GetBaselineWindowDays() int {
	if c.BaselineWindowDays == nil {
		return 90
	}
	return *c.BaselineWindowDays
}

// GetSampleIntervalDays returns the sample_interval_days value or the default.
func (c *TuningConfig) GetSampleIntervalDays() int {
	if c.SampleIntervalDays == nil {
		return 5
	}
	return *c.SampleIntervalDays
}

// GetGradualWindowDays returns the gradual_window_days value or the default.
func (c *TuningConfig) GetGradualWindowDays() int {
	if c.GradualWindowDays == nil {
		return 30
	}
	return *c.GradualWindowDays
}

// GetGradualStepDays returns the gradual_step_days value or the default.
func (c *TuningConfig) GetGradualStepDays() int {
	if c.GradualStepDays == nil {
		return 15
	}
	return *c.GradualStepDays
}

// GetSlopeThreshold returns the slope_threshold value or the default.
func (c *TuningConfig) GetSlopeThreshold() float64 {
	if c.SlopeThreshold == nil {
		return 0.05
	}
	return *c.SlopeThreshold
}

// GetSeasonalZThreshold returns the seasonal_z_threshold value or the default.
func (c *TuningConfig) GetSeasonalZThreshold() float64 {
	if c.SeasonalZThreshold == nil {
		return 2.0
	}
	return *c.SeasonalZThreshold
}

// GetHistoricalYears returns the historical_years value or the default.
func (c *TuningConfig) GetHistoricalYears() int {
	if c.HistoricalYears == nil {
		return 3
	}
	return *c.HistoricalYears
}

// GetGridSizeMeters returns the grid_size_meters value or the default.
func (c *TuningConfig) GetGridSizeMeters() float64 {
	if c.GridSizeMeters == nil {
		return hotspot.DefaultGridSizeMeters
	}
	return *c.GridSizeMeters
}

// GetHotspotSensitivity returns the hotspot_sensitivity value or the default.
func (c *TuningConfig) GetHotspotSensitivity() float64 {
	if c.HotspotSensitivity == nil {
		return hotspot.DefaultSensitivity
	}
	return *c.HotspotSensitivity
}

// GetHotspotBaselineDays returns the hotspot_baseline_days value or the default.
func (c *TuningConfig) GetHotspotBaselineDays() int {
	if c.HotspotBaselineDays == nil {
		return hotspot.DefaultBaselineDays
	}
	return *c.HotspotBaselineDays
}

// GetScanWorkers returns the scan_workers value or the default.
// Zero means one worker per CPU.
func (c *TuningConfig) GetScanWorkers() int {
	if c.ScanWorkers == nil {
		return 0
	}
	return *c.ScanWorkers
}

// GetToleranceMeters returns the tolerance_meters value or the default.
func (c *TuningConfig) GetToleranceMeters() float64 {
	if c.ToleranceMeters == nil {
		return 100.0
	}
	return *c.ToleranceMeters
}

// GetToleranceDays returns the tolerance_days value or the default.
func (c *TuningConfig) GetToleranceDays() int {
	if c.ToleranceDays == nil {
		return 10
	}
	return *c.ToleranceDays
}

// GetMatchStrategy returns the ground-truth matching strategy or the default.
func (c *TuningConfig) GetMatchStrategy() validation.MatchStrategy {
	if c.MatchStrategy == nil {
		return validation.MatchFirst
	}
	switch *c.MatchStrategy {
	case "nearest":
		return validation.MatchNearest
	case "nearest-date":
		return validation.MatchNearestDate
	default:
		return validation.MatchFirst
	}
}

// GetAdvisoryURL returns the advisory_url value or empty when no
// advisory service is configured.
func (c *TuningConfig) GetAdvisoryURL() string {
	if c.AdvisoryURL == nil {
		return ""
	}
	return *c.AdvisoryURL
}

// GetAdvisoryTimeout parses and returns the AdvisoryTimeout as a time.Duration.
func (c *TuningConfig) GetAdvisoryTimeout() time.Duration {
	if c.AdvisoryTimeout == nil || *c.AdvisoryTimeout == "" {
		return 30 * time.Second // default
	}
	d, err := time.ParseDuration(*c.AdvisoryTimeout)
	if err != nil {
		return 30 * time.Second // default on parse error
	}
	return d
}

// GetMediumRiskThreshold returns the medium_risk_threshold value or the default.
func (c *TuningConfig) GetMediumRiskThreshold() float64 {
	if c.MediumRiskThreshold == nil {
		return 0.3
	}
	return *c.MediumRiskThreshold
}

// GetHighRiskThreshold returns the high_risk_threshold value or the default.
func (c *TuningConfig) GetHighRiskThreshold() float64 {
	if c.HighRiskThreshold == nil {
		return 0.6
	}
	return *c.HighRiskThreshold
}

// GetListenAddr returns the listen_addr value or the default.
func (c *TuningConfig) GetListenAddr() string {
	if c.ListenAddr == nil {
		return ":8080"
	}
	return *c.ListenAddr
}

// GetDatabasePath returns the database_path value or the default.
func (c *TuningConfig) GetDatabasePath() string {
	if c.DatabasePath == nil {
		return "invasive.db"
	}
	return *c.DatabasePath
}

// DetectParams assembles a detect.Params from the configured values.
func (c *TuningConfig) DetectParams() detect.Params {
	return detect.Params{
		Sensitivity:        c.GetSensitivity(),
		BaselineWindowDays: c.GetBaselineWindowDays(),
		SampleIntervalDays: c.GetSampleIntervalDays(),
		GradualWindowDays:  c.GetGradualWindowDays(),
		GradualStepDays:    c.GetGradualStepDays(),
		SlopeThreshold:     c.GetSlopeThreshold(),
		SeasonalZThreshold: c.GetSeasonalZThreshold(),
		HistoricalYears:    c.GetHistoricalYears(),
	}
}

// HotspotParams assembles a hotspot.Params from the configured values.
func (c *TuningConfig) HotspotParams() hotspot.Params {
	return hotspot.Params{
		GridSizeMeters: c.GetGridSizeMeters(),
		Sensitivity:    c.GetHotspotSensitivity(),
		BaselineDays:   c.GetHotspotBaselineDays(),
		Workers:        c.GetScanWorkers(),
	}
}
