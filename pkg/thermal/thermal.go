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

// Package thermal turns temperature sensor readings into a refresh-rate
// cap. The scheduler treats a zero cap as "no cap".
package thermal

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/heliowm/helio-core/pkg/constants"
	"github.com/heliowm/helio-core/pkg/display"
	"github.com/heliowm/helio-core/pkg/logger"
	"go.uber.org/zap"
)

// Step maps a temperature ceiling to the cap applied above it. Steps are
// evaluated hottest-first; the first matching step wins.
type Step struct {
	// AboveCelsius is the zone temperature beyond which CapFps applies.
	AboveCelsius float64
	// CapFps is the refresh-rate ceiling; the scheduler clamps to the
	// nearest mode at or under it.
	CapFps display.Fps
}

// Sink receives cap changes; zero clears the cap.
type Sink func(fps display.Fps)

// SensorReader returns current temperature readings. Swappable for tests;
// the default reads the platform sensors via gopsutil.
type SensorReader func() (float64, error)

// Monitor polls the temperature sensors and pushes cap changes to the
// sink. A hysteresis-free step table is enough here; the scheduler already
// suppresses redundant mode changes.
type Monitor struct {
	steps      []Step
	sensorKey  string
	readSensor SensorReader
	sink       Sink

	mu         sync.Mutex
	currentCap display.Fps

	cancel context.CancelFunc
	wg     sync.WaitGroup

	log *zap.SugaredLogger
}

// NewMonitor creates a monitor over the given step table. sensorKey
// selects the sensor by substring match; empty matches the hottest zone.
func NewMonitor(steps []Step, sensorKey string, sink Sink) *Monitor {
	m := &Monitor{
		steps:     make([]Step, len(steps)),
		sensorKey: sensorKey,
		sink:      sink,
		log:       logger.For(logger.ComponentThermal),
	}
	copy(m.steps, steps)
	sort.Slice(m.steps, func(i, j int) bool { return m.steps[i].AboveCelsius > m.steps[j].AboveCelsius })

	m.readSensor = m.readPlatformSensor

	return m
}

// SetSensorReader swaps the sensor source. Call before Start.
func (m *Monitor) SetSensorReader(r SensorReader) {
	m.readSensor = r
}

// Start begins polling. Stop joins the poll goroutine.
func (m *Monitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go m.pollLoop(ctx)
}

// Stop joins the poll goroutine.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(constants.ThermalPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Poll()
		}
	}
}

// Poll reads the sensor once and applies the step table.
func (m *Monitor) Poll() {
	temp, err := m.readSensor()
	if err != nil {
		m.log.Debugf("sensor read failed: %v", err)

		return
	}

	capFps := display.Fps(0)
	for _, step := range m.steps {
		if temp > step.AboveCelsius {
			capFps = step.CapFps

			break
		}
	}

	m.mu.Lock()
	changed := !capFps.EqualsWithMargin(m.currentCap)
	if changed {
		m.currentCap = capFps
	}
	m.mu.Unlock()

	if changed {
		m.log.Infof("thermal cap now %s at %.1f°C", capFps, temp)
		m.sink(capFps)
	}
}

// CurrentCap returns the active cap, zero for none.
func (m *Monitor) CurrentCap() display.Fps {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.currentCap
}

// readPlatformSensor picks the configured (or hottest) temperature zone.
func (m *Monitor) readPlatformSensor() (float64, error) {
	stats, err := host.SensorsTemperatures()
	if err != nil {
		return 0, err
	}

	hottest := 0.0
	for _, stat := range stats {
		if m.sensorKey != "" && !strings.Contains(stat.SensorKey, m.sensorKey) {
			continue
		}
		if stat.Temperature > hottest {
			hottest = stat.Temperature
		}
	}

	return hottest, nil
}
