// Package config loads the trafficsim configuration from YAML
package config

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anggasct/phasesignal"
	"github.com/anggasct/phasesignal/pkg/observers"
)

//go:embed defaults/config.yaml
var defaultsFS embed.FS

// Config holds the simulation settings
type Config struct {
	Signals          []SignalConfig `yaml:"signals"`
	WaitersPerSignal int            `yaml:"waiters_per_signal"`
	RunFor           time.Duration  `yaml:"run_for"`
	LogLevel         string         `yaml:"log_level"`
	NoColor          bool           `yaml:"no_color"`
}

// SignalConfig describes one signal and its phase duration range [MinPhase, MaxPhase)
type SignalConfig struct {
	Name     string        `yaml:"name"`
	MinPhase time.Duration `yaml:"min_phase"`
	MaxPhase time.Duration `yaml:"max_phase"`
}

// DurationFunc returns the phase duration source for the signal
func (s SignalConfig) DurationFunc() (phasesignal.DurationFunc, error) {
	fn, err := phasesignal.UniformDuration(s.MinPhase, s.MaxPhase)
	if err != nil {
		return nil, fmt.Errorf("signal %q: %w", s.Name, err)
	}
	return fn, nil
}

// Default returns the embedded default configuration
func Default() Config {
	data, err := defaultsFS.ReadFile("defaults/config.yaml")
	if err != nil {
		panic(fmt.Sprintf("read embedded defaults: %v", err))
	}

	var cfg Config
	if err := decode(data, &cfg); err != nil {
		panic(fmt.Sprintf("parse embedded defaults: %v", err))
	}
	return cfg
}

// Load reads the config file at path over the defaults. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. A signals
// list in data replaces the default list entirely.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	if err := decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the configuration for consistency
func (c Config) Validate() error {
	if len(c.Signals) == 0 {
		return phasesignal.NewConfigurationError("Config", "at least one signal is required")
	}

	seen := make(map[string]bool, len(c.Signals))
	for i, s := range c.Signals {
		if s.Name == "" {
			return phasesignal.NewConfigurationError("Config", fmt.Sprintf("signal #%d has no name", i+1))
		}
		if seen[s.Name] {
			return phasesignal.NewConfigurationError("Config", fmt.Sprintf("duplicate signal name '%s'", s.Name))
		}
		seen[s.Name] = true

		if _, err := s.DurationFunc(); err != nil {
			return err
		}
	}

	if c.WaitersPerSignal < 0 {
		return phasesignal.NewConfigurationError("Config", fmt.Sprintf("waiters_per_signal must not be negative, got %d", c.WaitersPerSignal))
	}
	if c.RunFor <= 0 {
		return phasesignal.NewConfigurationError("Config", fmt.Sprintf("run_for must be positive, got %s", c.RunFor))
	}
	if _, err := observers.ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// GenerateSignals returns count signals named prefix-1..prefix-count sharing
// the range of the first configured signal
func (c Config) GenerateSignals(prefix string, count int) []SignalConfig {
	base := SignalConfig{MinPhase: phasesignal.DefaultMinPhase, MaxPhase: phasesignal.DefaultMaxPhase}
	if len(c.Signals) > 0 {
		base = c.Signals[0]
	}

	result := make([]SignalConfig, count)
	for i := range result {
		result[i] = SignalConfig{
			Name:     fmt.Sprintf("%s-%d", prefix, i+1),
			MinPhase: base.MinPhase,
			MaxPhase: base.MaxPhase,
		}
	}
	return result
}
