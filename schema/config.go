package schema

import (
	"errors"
	"fmt"
	"time"
)

// ActiveCeilings maps a pressure level to the maximum number of active
// tabs tolerated at that level. A ceiling of 0 or below means unlimited.
type ActiveCeilings map[PressureLevel]int

// Ceiling returns the ceiling for the level, defaulting to unlimited.
func (c ActiveCeilings) Ceiling(level PressureLevel) int {
	if c == nil {
		return 0
	}
	return c[level]
}

// Validate ensures ceilings tighten monotonically as pressure rises.
func (c ActiveCeilings) Validate() error {
	prev := 0
	for _, level := range Levels() {
		ceiling := c.Ceiling(level)
		if prev > 0 && (ceiling <= 0 || ceiling > prev) {
			return fmt.Errorf("ceiling for %s (%d) must not exceed ceiling for lower pressure (%d)", level, ceiling, prev)
		}
		if ceiling > 0 {
			prev = ceiling
		}
	}
	return nil
}

// ServiceConfig defines defaults and limits for the tab service.
type ServiceConfig struct {
	// StateDir persists tab metadata across restarts. Empty disables
	// persistence.
	StateDir string
	// Ceilings is the active-tab ceiling per pressure level.
	Ceilings ActiveCeilings
	// TransitionTimeout bounds each hibernate or wake operation.
	TransitionTimeout time.Duration
	// SweepConcurrency bounds concurrent hibernations per sweep.
	SweepConcurrency int
	// RecentlyClosedMax bounds the reopenable closed-tab list.
	RecentlyClosedMax int
}

// Defaults applied by NormalizeServiceConfig.
const (
	DefaultWarningCeiling    = 8
	DefaultCriticalCeiling   = 3
	DefaultTransitionTimeout = 10 * time.Second
	DefaultSweepConcurrency  = 2
	DefaultRecentlyClosedMax = 25
)

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if cfg.Ceilings == nil {
		cfg.Ceilings = ActiveCeilings{
			PressureNormal:   0,
			PressureWarning:  DefaultWarningCeiling,
			PressureCritical: DefaultCriticalCeiling,
		}
	}
	if err := cfg.Ceilings.Validate(); err != nil {
		return ServiceConfig{}, err
	}
	if cfg.TransitionTimeout <= 0 {
		cfg.TransitionTimeout = DefaultTransitionTimeout
	}
	if cfg.SweepConcurrency <= 0 {
		cfg.SweepConcurrency = DefaultSweepConcurrency
	}
	if cfg.RecentlyClosedMax <= 0 {
		cfg.RecentlyClosedMax = DefaultRecentlyClosedMax
	}
	if cfg.TransitionTimeout < 100*time.Millisecond {
		return ServiceConfig{}, errors.New("transition timeout too small")
	}
	return cfg, nil
}
