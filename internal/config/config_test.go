package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Detection.CUSUM == nil || cfg.Detection.GroupSequential == nil || cfg.Detection.SpaceTime == nil {
		t.Fatal("default configuration disabled a detector")
	}
	if cfg.Detection.CUSUM.H != 5.0 || cfg.Detection.CUSUM.BaselineMean != 0.1 {
		t.Errorf("cusum defaults = %+v", cfg.Detection.CUSUM)
	}
	if cfg.Detection.GroupSequential.BoundaryType != "obrien_fleming" {
		t.Errorf("boundary type = %q", cfg.Detection.GroupSequential.BoundaryType)
	}
	if cfg.Detection.MinRelativeRisk != 1.2 {
		t.Errorf("min relative risk = %v, want 1.2", cfg.Detection.MinRelativeRisk)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Errorf("poll interval = %v, want 5m", cfg.PollInterval)
	}
	if len(cfg.Streams) != 1 || cfg.Streams[0] != "default" {
		t.Errorf("streams = %v, want [default]", cfg.Streams)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CUSUM_H", "7.5")
	t.Setenv("GS_MAX_STAGES", "3")
	t.Setenv("ST_MAX_RADIUS_KM", "250")
	t.Setenv("DISEASE_STREAMS", "measles, influenza")
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("AUTO_CREATE_CLUSTERS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Detection.CUSUM.H != 7.5 {
		t.Errorf("CUSUM_H = %v, want 7.5", cfg.Detection.CUSUM.H)
	}
	if cfg.Detection.GroupSequential.MaxStages != 3 {
		t.Errorf("GS_MAX_STAGES = %d, want 3", cfg.Detection.GroupSequential.MaxStages)
	}
	if cfg.Detection.SpaceTime.MaxRadiusKM != 250 {
		t.Errorf("ST_MAX_RADIUS_KM = %v, want 250", cfg.Detection.SpaceTime.MaxRadiusKM)
	}
	if len(cfg.Streams) != 2 || cfg.Streams[1] != "influenza" {
		t.Errorf("streams = %v", cfg.Streams)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("poll interval = %v, want 30s", cfg.PollInterval)
	}
	if cfg.Detection.AutoCreateClusters {
		t.Error("AUTO_CREATE_CLUSTERS=false ignored")
	}
}

func TestLoad_DisablesDetectors(t *testing.T) {
	t.Setenv("CUSUM_ENABLED", "false")
	t.Setenv("SPACE_TIME_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Detection.CUSUM != nil {
		t.Error("CUSUM still enabled")
	}
	if cfg.Detection.SpaceTime != nil {
		t.Error("space-time still enabled")
	}
	if cfg.Detection.GroupSequential == nil {
		t.Error("group sequential wrongly disabled")
	}
}

func TestLoad_RejectsMalformedValues(t *testing.T) {
	cases := map[string]string{
		"CUSUM_H":       "tall",
		"GS_MAX_STAGES": "many",
		"POLL_INTERVAL": "sometimes",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Errorf("%s=%q did not fail", key, value)
			}
		})
	}
}
