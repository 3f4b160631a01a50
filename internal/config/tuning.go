// Package config holds the tunable parameters of the measurement pipeline.
// A single JSON file can override any subset of them; everything omitted
// falls back to the built-in defaults through the Get* accessors.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/screenlag/internal/analysis"
	"github.com/banshee-data/screenlag/internal/anomaly"
	"github.com/banshee-data/screenlag/internal/netlog"
	"github.com/banshee-data/screenlag/internal/region"
	"github.com/banshee-data/screenlag/internal/roi"
)

// TuningConfig is the root configuration for pipeline tuning parameters.
// All fields are pointers so a partial JSON file only overrides what it
// names; nil means "use the default".
type TuningConfig struct {
	// ROI tracker params
	MaxConsecutiveFails *int     `json:"max_consecutive_fails,omitempty"`
	MaxFrameGap         *int     `json:"max_frame_gap,omitempty"`
	MinTrackConfidence  *float64 `json:"min_track_confidence,omitempty"`
	ResetConfidence     *float64 `json:"reset_confidence,omitempty"`
	SearchExpandRatio   *float64 `json:"search_expand_ratio,omitempty"`

	// Locator params
	MinOCRConfidence        *float64 `json:"min_ocr_confidence,omitempty"`
	MaxExclusionIoU         *float64 `json:"max_exclusion_iou,omitempty"`
	MaxExclusionContainment *float64 `json:"max_exclusion_containment,omitempty"`
	EdgeExpandPixels        *int     `json:"edge_expand_pixels,omitempty"`
	EdgeMargin              *int     `json:"edge_margin,omitempty"`
	EdgeMarginAfter         *int     `json:"edge_margin_after,omitempty"`

	// Anomaly detector params
	MaxDelayMs            *int64   `json:"max_delay_ms,omitempty"`
	MinDelayMs            *int64   `json:"min_delay_ms,omitempty"`
	JumpBaseMs            *int64   `json:"jump_base_ms,omitempty"`
	JumpFactor            *int64   `json:"jump_factor,omitempty"`
	RegressionToleranceMs *int64   `json:"regression_tolerance_ms,omitempty"`
	StatisticalInterval   *int     `json:"statistical_interval,omitempty"`
	StatisticalMinSamples *int     `json:"statistical_min_samples,omitempty"`
	StatisticalZMax       *float64 `json:"statistical_z_max,omitempty"`

	// Analyzer params
	FPS       *float64 `json:"fps,omitempty"`
	AppRegion []int    `json:"app_region,omitempty"` // [x1, y1, x2, y2]

	// Network matcher params
	MatchToleranceSeconds *float64 `json:"match_tolerance_seconds,omitempty"`

	// Ping monitor params
	PingTargets    []string `json:"ping_targets,omitempty"`
	PingInterval   *string  `json:"ping_interval,omitempty"` // duration string like "1s"
	PingTimeout    *string  `json:"ping_timeout,omitempty"`  // duration string like "2s"
	PingBufferSize *int     `json:"ping_buffer_size,omitempty"`
	HighLatencyMs  *float64 `json:"high_latency_ms,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the max file size. Fields omitted
// from the JSON retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that any set values are usable.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*float64{
		"min_track_confidence": c.MinTrackConfidence,
		"reset_confidence":     c.ResetConfidence,
		"min_ocr_confidence":   c.MinOCRConfidence,
	} {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
	}

	if c.MaxConsecutiveFails != nil && *c.MaxConsecutiveFails < 1 {
		return fmt.Errorf("max_consecutive_fails must be at least 1, got %d", *c.MaxConsecutiveFails)
	}
	if c.SearchExpandRatio != nil && *c.SearchExpandRatio < 0 {
		return fmt.Errorf("search_expand_ratio must be non-negative, got %f", *c.SearchExpandRatio)
	}
	if c.StatisticalZMax != nil && *c.StatisticalZMax <= 0 {
		return fmt.Errorf("statistical_z_max must be positive, got %f", *c.StatisticalZMax)
	}
	if c.FPS != nil && *c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %f", *c.FPS)
	}
	if c.MatchToleranceSeconds != nil && *c.MatchToleranceSeconds < 0 {
		return fmt.Errorf("match_tolerance_seconds must be non-negative, got %f", *c.MatchToleranceSeconds)
	}

	if len(c.AppRegion) != 0 {
		if len(c.AppRegion) != 4 {
			return fmt.Errorf("app_region must have 4 values [x1, y1, x2, y2], got %d", len(c.AppRegion))
		}
		r := c.GetAppRegion()
		if !r.Valid() {
			return fmt.Errorf("app_region %v is not a valid rectangle", c.AppRegion)
		}
	}

	if c.PingInterval != nil && *c.PingInterval != "" {
		if _, err := time.ParseDuration(*c.PingInterval); err != nil {
			return fmt.Errorf("invalid ping_interval '%s': %w", *c.PingInterval, err)
		}
	}
	if c.PingTimeout != nil && *c.PingTimeout != "" {
		if _, err := time.ParseDuration(*c.PingTimeout); err != nil {
			return fmt.Errorf("invalid ping_timeout '%s': %w", *c.PingTimeout, err)
		}
	}

	return nil
}

// GetAppRegion returns the fixed app-timestamp region, or the zero region
// when unconfigured.
func (c *TuningConfig) GetAppRegion() region.Region {
	if len(c.AppRegion) != 4 {
		return region.Region{}
	}
	return region.Region{X1: c.AppRegion[0], Y1: c.AppRegion[1], X2: c.AppRegion[2], Y2: c.AppRegion[3]}
}

// GetFPS returns the fps value or the default.
func (c *TuningConfig) GetFPS() float64 {
	if c.FPS == nil {
		return 30
	}
	return *c.FPS
}

// GetPingInterval parses and returns the PingInterval as a time.Duration.
func (c *TuningConfig) GetPingInterval() time.Duration {
	if c.PingInterval == nil || *c.PingInterval == "" {
		return time.Second
	}
	d, err := time.ParseDuration(*c.PingInterval)
	if err != nil {
		return time.Second
	}
	return d
}

// GetPingTimeout parses and returns the PingTimeout as a time.Duration.
func (c *TuningConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout == nil || *c.PingTimeout == "" {
		return 2 * time.Second
	}
	d, err := time.ParseDuration(*c.PingTimeout)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// TrackerConfig materializes the ROI tracker configuration.
func (c *TuningConfig) TrackerConfig() roi.TrackerConfig {
	cfg := roi.DefaultTrackerConfig()
	if c.MaxConsecutiveFails != nil {
		cfg.MaxConsecutiveFails = *c.MaxConsecutiveFails
	}
	if c.MaxFrameGap != nil {
		cfg.MaxFrameGap = *c.MaxFrameGap
	}
	if c.MinTrackConfidence != nil {
		cfg.MinTrackConfidence = *c.MinTrackConfidence
	}
	if c.ResetConfidence != nil {
		cfg.ResetConfidence = *c.ResetConfidence
	}
	if c.SearchExpandRatio != nil {
		cfg.SearchExpandRatio = *c.SearchExpandRatio
	}
	return cfg
}

// LocatorConfig materializes the locator configuration.
func (c *TuningConfig) LocatorConfig() roi.LocatorConfig {
	cfg := roi.DefaultLocatorConfig()
	if c.MinOCRConfidence != nil {
		cfg.MinConfidence = *c.MinOCRConfidence
	}
	if c.MaxExclusionIoU != nil {
		cfg.MaxExclusionIoU = *c.MaxExclusionIoU
	}
	if c.MaxExclusionContainment != nil {
		cfg.MaxExclusionContainment = *c.MaxExclusionContainment
	}
	if c.EdgeExpandPixels != nil {
		cfg.ExpandPixels = *c.EdgeExpandPixels
	}
	if c.EdgeMargin != nil {
		cfg.EdgeMargin = *c.EdgeMargin
	}
	if c.EdgeMarginAfter != nil {
		cfg.EdgeMarginAfter = *c.EdgeMarginAfter
	}
	return cfg
}

// DetectorConfig materializes the anomaly detector configuration.
func (c *TuningConfig) DetectorConfig() anomaly.Config {
	cfg := anomaly.DefaultConfig()
	if c.MaxDelayMs != nil {
		cfg.MaxDelayMs = *c.MaxDelayMs
	}
	if c.MinDelayMs != nil {
		cfg.MinDelayMs = *c.MinDelayMs
	}
	if c.JumpBaseMs != nil {
		cfg.JumpBaseMs = *c.JumpBaseMs
	}
	if c.JumpFactor != nil {
		cfg.JumpFactor = *c.JumpFactor
	}
	if c.RegressionToleranceMs != nil {
		cfg.RegressionToleranceMs = *c.RegressionToleranceMs
	}
	if c.StatisticalInterval != nil {
		cfg.StatisticalInterval = *c.StatisticalInterval
	}
	if c.StatisticalMinSamples != nil {
		cfg.StatisticalMinSamples = *c.StatisticalMinSamples
	}
	if c.StatisticalZMax != nil {
		cfg.StatisticalZMax = *c.StatisticalZMax
	}
	return cfg
}

// AnalyzerConfig materializes the analyzer configuration for a video.
func (c *TuningConfig) AnalyzerConfig(videoName string) analysis.AnalyzerConfig {
	cfg := analysis.DefaultAnalyzerConfig()
	cfg.VideoName = videoName
	cfg.FPS = c.GetFPS()
	cfg.AppRegion = c.GetAppRegion()
	if c.MinOCRConfidence != nil {
		cfg.MinAppConfidence = *c.MinOCRConfidence
	}
	return cfg
}

// MatcherConfig materializes the network matcher configuration.
func (c *TuningConfig) MatcherConfig() netlog.MatcherConfig {
	cfg := netlog.DefaultMatcherConfig()
	if c.MatchToleranceSeconds != nil {
		cfg.ToleranceSeconds = *c.MatchToleranceSeconds
	}
	return cfg
}

// MonitorConfig materializes the ping monitor configuration.
func (c *TuningConfig) MonitorConfig() netlog.MonitorConfig {
	cfg := netlog.DefaultMonitorConfig()
	if len(c.PingTargets) > 0 {
		cfg.Targets = append([]string(nil), c.PingTargets...)
	}
	cfg.Interval = c.GetPingInterval()
	cfg.Timeout = c.GetPingTimeout()
	if c.PingBufferSize != nil {
		cfg.BufferSize = *c.PingBufferSize
	}
	if c.HighLatencyMs != nil {
		cfg.HighLatencyMs = *c.HighLatencyMs
	}
	return cfg
}
