package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/drowse/internal/pressure"
	"pkt.systems/drowse/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int               `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string            `mapstructure:"state_dir" yaml:"state_dir"`
	Hibernation   HibernationConfig `mapstructure:"hibernation" yaml:"hibernation"`
	Pressure      PressureConfig    `mapstructure:"pressure" yaml:"pressure"`
	Browser       BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	HTTP          HTTPConfig        `mapstructure:"http" yaml:"http"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// HibernationConfig controls the tab lifecycle engine.
type HibernationConfig struct {
	WarningCeiling           int `mapstructure:"warning_ceiling" yaml:"warning_ceiling"`
	CriticalCeiling          int `mapstructure:"critical_ceiling" yaml:"critical_ceiling"`
	TransitionTimeoutSeconds int `mapstructure:"transition_timeout_seconds" yaml:"transition_timeout_seconds"`
	SweepConcurrency         int `mapstructure:"sweep_concurrency" yaml:"sweep_concurrency"`
	RecentlyClosedMax        int `mapstructure:"recently_closed_max" yaml:"recently_closed_max"`
}

// ServiceConfig converts to the core service configuration.
func (c HibernationConfig) ServiceConfig(stateDir string) schema.ServiceConfig {
	return schema.ServiceConfig{
		StateDir: stateDir,
		Ceilings: schema.ActiveCeilings{
			schema.PressureNormal:   0,
			schema.PressureWarning:  c.WarningCeiling,
			schema.PressureCritical: c.CriticalCeiling,
		},
		TransitionTimeout: time.Duration(c.TransitionTimeoutSeconds) * time.Second,
		SweepConcurrency:  c.SweepConcurrency,
		RecentlyClosedMax: c.RecentlyClosedMax,
	}
}

// PressureConfig controls the memory pressure monitor.
type PressureConfig struct {
	PollIntervalSeconds    int     `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	StabilityWindowSeconds int     `mapstructure:"stability_window_seconds" yaml:"stability_window_seconds"`
	WarningThreshold       float64 `mapstructure:"warning_threshold" yaml:"warning_threshold"`
	CriticalThreshold      float64 `mapstructure:"critical_threshold" yaml:"critical_threshold"`
}

// MonitorConfig converts to the pressure monitor configuration.
func (c PressureConfig) MonitorConfig() pressure.Config {
	return pressure.Config{
		PollInterval:    time.Duration(c.PollIntervalSeconds) * time.Second,
		StabilityWindow: time.Duration(c.StabilityWindowSeconds) * time.Second,
		Thresholds: pressure.Thresholds{
			Warning:  c.WarningThreshold,
			Critical: c.CriticalThreshold,
		},
	}
}

// BrowserConfig selects and tunes the content loader backend.
type BrowserConfig struct {
	// Backend is "chrome" or "memory".
	Backend     string `mapstructure:"backend" yaml:"backend"`
	ExecPath    string `mapstructure:"exec_path" yaml:"exec_path"`
	Headless    bool   `mapstructure:"headless" yaml:"headless"`
	NoSandbox   bool   `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	UserDataDir string `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	// MaxHandles bounds live handles for the memory backend. 0 means
	// unlimited.
	MaxHandles int `mapstructure:"max_handles" yaml:"max_handles"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".drowse", "state"),
		Hibernation: HibernationConfig{
			WarningCeiling:           schema.DefaultWarningCeiling,
			CriticalCeiling:          schema.DefaultCriticalCeiling,
			TransitionTimeoutSeconds: int(schema.DefaultTransitionTimeout / time.Second),
			SweepConcurrency:         schema.DefaultSweepConcurrency,
			RecentlyClosedMax:        schema.DefaultRecentlyClosedMax,
		},
		Pressure: PressureConfig{
			PollIntervalSeconds:    int(pressure.DefaultPollInterval / time.Second),
			StabilityWindowSeconds: int(pressure.DefaultStabilityWindow / time.Second),
			WarningThreshold:       pressure.DefaultWarningThreshold,
			CriticalThreshold:      pressure.DefaultCriticalThreshold,
		},
		Browser: BrowserConfig{
			Backend:   "memory",
			Headless:  true,
			NoSandbox: false,
		},
		HTTP: HTTPConfig{
			Addr: ":27490",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".drowse", "config.yaml"), nil
}
