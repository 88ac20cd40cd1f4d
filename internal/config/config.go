// Package config loads engine configuration from the environment with
// fail-fast validation. Detector defaults mirror the surveillance tuning the
// engine ships with; anything structurally invalid aborts startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CUSUMSettings tunes the cumulative-sum detector. Nil disables it.
type CUSUMSettings struct {
	BaselineMean  float64
	TargetShift   float64
	K             float64
	H             float64
	ResetOnSignal bool
}

// GroupSequentialSettings tunes the staged-test detector. Nil disables it.
type GroupSequentialSettings struct {
	BaselineRate float64
	EffectSize   float64
	MaxStages    int
	Alpha        float64
	BoundaryType string
}

// SpaceTimeSettings tunes the spatial scan detector. Nil disables it.
type SpaceTimeSettings struct {
	BaselineRate      float64
	Alpha             float64
	MaxRadiusKM       float64
	MaxTimeWindowDays int
}

// DetectionConfig selects and tunes the detector suite for one run.
type DetectionConfig struct {
	AutoCreateClusters bool
	MinRelativeRisk    float64
	CUSUM              *CUSUMSettings
	GroupSequential    *GroupSequentialSettings
	SpaceTime          *SpaceTimeSettings
}

// StoreConfig selects the cluster store backend. A DatabaseURL wins over a
// FilePath; with neither set the store is memory-only.
type StoreConfig struct {
	DatabaseURL string
	FilePath    string
}

// Config is the full engine configuration.
type Config struct {
	Detection    DetectionConfig
	Store        StoreConfig
	Streams      []string
	CaseFeedDir  string
	PollInterval time.Duration
}

// DefaultDetection returns the full detector suite with standard tuning.
func DefaultDetection() DetectionConfig {
	return DetectionConfig{
		AutoCreateClusters: true,
		MinRelativeRisk:    1.2,
		CUSUM: &CUSUMSettings{
			BaselineMean: 0.1,
			TargetShift:  0.05,
			K:            0.5,
			H:            5.0,
		},
		GroupSequential: &GroupSequentialSettings{
			BaselineRate: 0.1,
			EffectSize:   0.05,
			MaxStages:    5,
			Alpha:        0.05,
			BoundaryType: "obrien_fleming",
		},
		SpaceTime: &SpaceTimeSettings{
			BaselineRate:      0.1,
			Alpha:             0.05,
			MaxRadiusKM:       100,
			MaxTimeWindowDays: 14,
		},
	}
}

// Load reads configuration from the environment. Validation failures are
// returned, never papered over with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Detection: DefaultDetection(),
		Store: StoreConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			FilePath:    os.Getenv("STORE_FILE"),
		},
		CaseFeedDir:  os.Getenv("CASE_FEED_DIR"),
		PollInterval: 5 * time.Minute,
	}

	if streams := os.Getenv("DISEASE_STREAMS"); streams != "" {
		for _, s := range strings.Split(streams, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Streams = append(cfg.Streams, s)
			}
		}
	}
	if len(cfg.Streams) == 0 {
		cfg.Streams = []string{"default"}
	}

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_INTERVAL %q: %w", v, err)
		}
		if interval <= 0 {
			return nil, fmt.Errorf("POLL_INTERVAL must be positive, got %q", v)
		}
		cfg.PollInterval = interval
	}

	var err error
	if cfg.Detection.MinRelativeRisk, err = envFloat("MIN_RELATIVE_RISK", cfg.Detection.MinRelativeRisk); err != nil {
		return nil, err
	}
	if cfg.Detection.AutoCreateClusters, err = envBool("AUTO_CREATE_CLUSTERS", cfg.Detection.AutoCreateClusters); err != nil {
		return nil, err
	}

	if err := loadCUSUM(cfg.Detection.CUSUM); err != nil {
		return nil, err
	}
	if err := loadGroupSequential(cfg.Detection.GroupSequential); err != nil {
		return nil, err
	}
	if err := loadSpaceTime(cfg.Detection.SpaceTime); err != nil {
		return nil, err
	}

	if enabled, err := envBool("CUSUM_ENABLED", true); err != nil {
		return nil, err
	} else if !enabled {
		cfg.Detection.CUSUM = nil
	}
	if enabled, err := envBool("GROUP_SEQUENTIAL_ENABLED", true); err != nil {
		return nil, err
	} else if !enabled {
		cfg.Detection.GroupSequential = nil
	}
	if enabled, err := envBool("SPACE_TIME_ENABLED", true); err != nil {
		return nil, err
	} else if !enabled {
		cfg.Detection.SpaceTime = nil
	}

	return cfg, nil
}

func loadCUSUM(s *CUSUMSettings) error {
	var err error
	if s.BaselineMean, err = envFloat("CUSUM_BASELINE_MEAN", s.BaselineMean); err != nil {
		return err
	}
	if s.TargetShift, err = envFloat("CUSUM_TARGET_SHIFT", s.TargetShift); err != nil {
		return err
	}
	if s.K, err = envFloat("CUSUM_K", s.K); err != nil {
		return err
	}
	if s.H, err = envFloat("CUSUM_H", s.H); err != nil {
		return err
	}
	if s.ResetOnSignal, err = envBool("CUSUM_RESET_ON_SIGNAL", s.ResetOnSignal); err != nil {
		return err
	}
	return nil
}

func loadGroupSequential(s *GroupSequentialSettings) error {
	var err error
	if s.BaselineRate, err = envFloat("GS_BASELINE_RATE", s.BaselineRate); err != nil {
		return err
	}
	if s.EffectSize, err = envFloat("GS_EFFECT_SIZE", s.EffectSize); err != nil {
		return err
	}
	if s.MaxStages, err = envInt("GS_MAX_STAGES", s.MaxStages); err != nil {
		return err
	}
	if s.Alpha, err = envFloat("GS_ALPHA", s.Alpha); err != nil {
		return err
	}
	if v := os.Getenv("GS_BOUNDARY_TYPE"); v != "" {
		s.BoundaryType = v
	}
	return nil
}

func loadSpaceTime(s *SpaceTimeSettings) error {
	var err error
	if s.BaselineRate, err = envFloat("ST_BASELINE_RATE", s.BaselineRate); err != nil {
		return err
	}
	if s.Alpha, err = envFloat("ST_ALPHA", s.Alpha); err != nil {
		return err
	}
	if s.MaxRadiusKM, err = envFloat("ST_MAX_RADIUS_KM", s.MaxRadiusKM); err != nil {
		return err
	}
	if s.MaxTimeWindowDays, err = envInt("ST_MAX_TIME_WINDOW_DAYS", s.MaxTimeWindowDays); err != nil {
		return err
	}
	return nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return i, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
