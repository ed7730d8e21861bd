// Copyright 2025 Helio Display Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the process configuration: a YAML file with
// environment-variable overrides on top, retried with backoff while the
// file settles at boot.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/cenkalti/backoff"
	"gopkg.in/yaml.v3"

	"github.com/heliowm/helio-core/pkg/env"
	"github.com/heliowm/helio-core/pkg/logger"
	"go.uber.org/zap"
)

// ModeConfig declares one refresh mode of the display.
type ModeConfig struct {
	ID  int32   `yaml:"id"`
	Fps float64 `yaml:"fps"`
}

// DisplayConfig declares the display's fixed mode set.
type DisplayConfig struct {
	Modes                     []ModeConfig `yaml:"modes"`
	SupportsFrameRateOverride bool         `yaml:"supports_frame_rate_override"`
}

// SchedulerConfig holds the scheduler options. Timer values are in
// milliseconds; zero disables the timer.
type SchedulerConfig struct {
	SupportKernelTimer  bool `yaml:"support_kernel_timer"`
	UseContentDetection bool `yaml:"use_content_detection"`

	IdleTimerMs         int `yaml:"idle_timer_ms"`
	TouchTimerMs        int `yaml:"touch_timer_ms"`
	DisplayPowerTimerMs int `yaml:"display_power_timer_ms"`
}

// DebugConfig holds the diagnostic switches.
type DebugConfig struct {
	ShowPredictedVsync bool `yaml:"show_predicted_vsync"`
	TraceVsync         bool `yaml:"trace_vsync"`
}

// ThermalStepConfig maps a temperature to a refresh-rate cap.
type ThermalStepConfig struct {
	AboveCelsius float64 `yaml:"above_celsius"`
	CapFps       float64 `yaml:"cap_fps"`
}

// ThermalConfig configures the thermal monitor.
type ThermalConfig struct {
	SensorKey string              `yaml:"sensor_key"`
	Steps     []ThermalStepConfig `yaml:"steps"`
}

// Config is the process configuration.
type Config struct {
	Display   DisplayConfig   `yaml:"display"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Debug     DebugConfig     `yaml:"debug"`
	Thermal   ThermalConfig   `yaml:"thermal"`

	SimulateDisplay bool   `yaml:"simulate_display"`
	MetricsPort     int    `yaml:"metrics_port"`
	DebugPort       int    `yaml:"debug_port"`
	SentryDSN       string `yaml:"sentry_dsn"`
}

// DefaultConfig is what a missing config file means: a simulated 60/90/120
// panel with content detection on.
func DefaultConfig() Config {
	return Config{
		Display: DisplayConfig{
			Modes: []ModeConfig{
				{ID: 0, Fps: 60},
				{ID: 1, Fps: 90},
				{ID: 2, Fps: 120},
			},
			SupportsFrameRateOverride: true,
		},
		Scheduler: SchedulerConfig{
			UseContentDetection: true,
			IdleTimerMs:         4000,
			TouchTimerMs:        600,
			DisplayPowerTimerMs: 200,
		},
		SimulateDisplay: true,
		MetricsPort:     9091,
		DebugPort:       9092,
	}
}

// FileConfigManager loads the config file with bounded retries.
type FileConfigManager struct {
	path string
	log  *zap.SugaredLogger
}

// NewFileConfigManagerWithBackoff creates a manager for path.
func NewFileConfigManagerWithBackoff(path string) *FileConfigManager {
	return &FileConfigManager{
		path: path,
		log:  logger.For(logger.ComponentConfigManager),
	}
}

// Load reads and parses the config file, retrying transient read errors
// with exponential backoff. A missing file yields the defaults. Parse
// errors are permanent.
func (m *FileConfigManager) Load() (Config, error) {
	cfg := DefaultConfig()

	operation := func() error {
		raw, err := os.ReadFile(m.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				m.log.Infof("no config file at %s, using defaults", m.path)

				return nil
			}

			return err
		}

		fresh := DefaultConfig()
		if err := yaml.Unmarshal(raw, &fresh); err != nil {
			return backoff.Permanent(fmt.Errorf("parsing %s: %w", m.path, err))
		}

		cfg = fresh

		return nil
	}

	if err := backoff.Retry(operation, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4)); err != nil {
		return cfg, err
	}

	applyEnvOverrides(&cfg, m.log)

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// applyEnvOverrides lays the debug environment knobs over the file values.
func applyEnvOverrides(cfg *Config, log *zap.SugaredLogger) {
	if ms, err := env.GetAsInt("DEBUG_SET_IDLE_TIMER_MS", false, 0); err == nil && ms > 0 {
		log.Infof("idle timer overridden to %dms via environment", ms)
		cfg.Scheduler.IdleTimerMs = ms
	}

	if show, err := env.GetAsBool("DEBUG_SHOW_PREDICTED_VSYNC", false, cfg.Debug.ShowPredictedVsync); err == nil {
		cfg.Debug.ShowPredictedVsync = show
	}

	if port, err := env.GetAsInt("METRICS_PORT", false, cfg.MetricsPort); err == nil {
		cfg.MetricsPort = port
	}
}

func validate(cfg Config) error {
	if len(cfg.Display.Modes) == 0 {
		return errors.New("config declares no display modes")
	}

	seen := make(map[int32]bool, len(cfg.Display.Modes))
	for _, mode := range cfg.Display.Modes {
		if mode.Fps <= 0 {
			return fmt.Errorf("mode %d has invalid fps %.2f", mode.ID, mode.Fps)
		}
		if seen[mode.ID] {
			return fmt.Errorf("duplicate mode id %d", mode.ID)
		}
		seen[mode.ID] = true
	}

	return nil
}
