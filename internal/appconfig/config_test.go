package appconfig

import (
	"testing"
	"time"

	"pkt.systems/drowse/schema"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestServiceConfigConversion(t *testing.T) {
	cfg := HibernationConfig{
		WarningCeiling:           8,
		CriticalCeiling:          3,
		TransitionTimeoutSeconds: 10,
		SweepConcurrency:         2,
		RecentlyClosedMax:        25,
	}
	svcCfg := cfg.ServiceConfig("/state")
	if svcCfg.Ceilings.Ceiling(schema.PressureNormal) != 0 {
		t.Fatalf("normal level must be unlimited")
	}
	if svcCfg.Ceilings.Ceiling(schema.PressureWarning) != 8 {
		t.Fatalf("warning ceiling lost in conversion")
	}
	if svcCfg.TransitionTimeout != 10*time.Second {
		t.Fatalf("timeout lost in conversion: %v", svcCfg.TransitionTimeout)
	}
}

func TestMonitorConfigConversion(t *testing.T) {
	cfg := PressureConfig{
		PollIntervalSeconds:    2,
		StabilityWindowSeconds: 5,
		WarningThreshold:       0.75,
		CriticalThreshold:      0.90,
	}
	mcfg := cfg.MonitorConfig()
	if mcfg.PollInterval != 2*time.Second || mcfg.StabilityWindow != 5*time.Second {
		t.Fatalf("durations lost in conversion: %+v", mcfg)
	}
	if mcfg.Thresholds.Warning != 0.75 || mcfg.Thresholds.Critical != 0.90 {
		t.Fatalf("thresholds lost in conversion: %+v", mcfg)
	}
}
