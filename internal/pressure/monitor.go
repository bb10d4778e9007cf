// Package pressure turns raw memory samples into the discrete pressure
// levels the tab service acts on. Increases propagate immediately;
// decreases must hold for a stability window before they commit, so a
// flapping signal cannot thrash the sweep.
package pressure

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"pkt.systems/drowse/schema"
	"pkt.systems/pslog"
)

// Sample is one memory observation.
type Sample struct {
	Used  uint64
	Total uint64
}

// Fraction returns the used fraction, or 0 when the total is unknown.
func (s Sample) Fraction() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Used) / float64(s.Total)
}

// Source produces memory samples.
type Source interface {
	Sample() (Sample, error)
}

// Notifier receives committed pressure-level changes.
type Notifier interface {
	OnPressureChange(level schema.PressureLevel)
}

// Thresholds are used-memory fractions at which each level begins.
type Thresholds struct {
	Warning  float64
	Critical float64
}

// Config tunes the monitor.
type Config struct {
	// PollInterval is how often the source is sampled.
	PollInterval time.Duration
	// StabilityWindow is how long a lower level must hold before it
	// commits.
	StabilityWindow time.Duration
	Thresholds      Thresholds
}

// Defaults applied by NormalizeConfig.
const (
	DefaultPollInterval      = 2 * time.Second
	DefaultStabilityWindow   = 5 * time.Second
	DefaultWarningThreshold  = 0.75
	DefaultCriticalThreshold = 0.90
)

// NormalizeConfig applies defaults.
func NormalizeConfig(cfg Config) Config {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StabilityWindow <= 0 {
		cfg.StabilityWindow = DefaultStabilityWindow
	}
	if cfg.Thresholds.Warning <= 0 {
		cfg.Thresholds.Warning = DefaultWarningThreshold
	}
	if cfg.Thresholds.Critical <= 0 {
		cfg.Thresholds.Critical = DefaultCriticalThreshold
	}
	return cfg
}

// Classify maps a sample to a pressure level.
func Classify(sample Sample, thresholds Thresholds) schema.PressureLevel {
	fraction := sample.Fraction()
	switch {
	case fraction >= thresholds.Critical:
		return schema.PressureCritical
	case fraction >= thresholds.Warning:
		return schema.PressureWarning
	default:
		return schema.PressureNormal
	}
}

// Monitor polls a source and notifies on committed level changes.
type Monitor struct {
	cfg    Config
	src    Source
	notify Notifier
	log    pslog.Logger
	clock  clock.Clock

	level        schema.PressureLevel
	pending      schema.PressureLevel
	pendingSince time.Time
	hasPending   bool
}

// NewMonitor constructs a monitor. The notifier is typically the tab
// service itself.
func NewMonitor(cfg Config, src Source, notify Notifier, logger pslog.Logger, clk clock.Clock) *Monitor {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Monitor{
		cfg:    NormalizeConfig(cfg),
		src:    src,
		notify: notify,
		log:    logger,
		clock:  clk,
	}
}

// Run polls until the context is canceled. Only the Run goroutine
// touches the monitor's state.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := m.clock.Ticker(m.cfg.PollInterval)
	defer ticker.Stop()
	m.poll(m.clock.Now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			m.poll(now)
		}
	}
}

func (m *Monitor) poll(now time.Time) {
	sample, err := m.src.Sample()
	if err != nil {
		m.log.Warn("memory sample failed", "err", err)
		return
	}
	m.Observe(Classify(sample, m.cfg.Thresholds), now)
}

// Observe feeds one classified level through the debounce state machine.
func (m *Monitor) Observe(level schema.PressureLevel, now time.Time) {
	switch {
	case level == m.level:
		m.hasPending = false
	case level > m.level:
		// Scarcity is acted on immediately.
		m.commit(level)
	default:
		// Relief must hold for the full stability window. Any bounce
		// restarts the clock.
		if !m.hasPending || m.pending != level {
			m.pending = level
			m.pendingSince = now
			m.hasPending = true
			return
		}
		if now.Sub(m.pendingSince) >= m.cfg.StabilityWindow {
			m.commit(level)
		}
	}
}

func (m *Monitor) commit(level schema.PressureLevel) {
	old := m.level
	m.level = level
	m.hasPending = false
	m.log.Debug("pressure level committed", "old", old, "new", level)
	if m.notify != nil {
		m.notify.OnPressureChange(level)
	}
}

// Level returns the last committed level. Only safe from the Run
// goroutine or when Run is not active.
func (m *Monitor) Level() schema.PressureLevel {
	return m.level
}
