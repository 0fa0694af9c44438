package config

import (
	"time"

	"github.com/b/portkeeper/pkg/paths"
)

type Config struct {
	Discovery   Discovery   `yaml:"discovery"`
	Termination Termination `yaml:"termination"`
	Launch      Launch      `yaml:"launch"`
	Reconcile   Reconcile   `yaml:"reconcile"`
	Log         Log         `yaml:"log"`
	Metrics     Metrics     `yaml:"metrics"`
	UI          UI          `yaml:"ui"`
}

type Discovery struct {
	Interval      time.Duration `yaml:"interval"`       // Poll period (default: 2s)
	OnlyMonitored bool          `yaml:"only_monitored"` // Skip processes not in the monitored list
}

type Termination struct {
	Timeout       time.Duration `yaml:"timeout"`         // Split between close and interrupt (default: 5s)
	ForceKillWait time.Duration `yaml:"force_kill_wait"` // Wait after force kill (default: 2s)
}

type Launch struct {
	SettleDelay time.Duration `yaml:"settle_delay"` // Wait before refreshing after a start (default: 2s)
	LogOutput   *bool         `yaml:"log_output"`   // Tee started servers to the log dir (default: true)
}

// LogOutputEnabled reports whether started servers have their output logged.
func (l Launch) LogOutputEnabled() bool {
	return l.LogOutput == nil || *l.LogOutput
}

type Reconcile struct {
	HideIgnoredRemembered bool `yaml:"hide_ignored_remembered"`
}

type Log struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: info)
}

type Metrics struct {
	Addr string `yaml:"addr"` // e.g. 127.0.0.1:9464, empty disables
}

type UI struct {
	RunningColor string `yaml:"running_color"` // default: #2ecc71
	StoppedColor string `yaml:"stopped_color"` // default: #7f8c8d
}

func DefaultConfigPath() string {
	return paths.ConfigPath()
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
