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

package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/heliowm/helio-core/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Component labels.
	ComponentScheduler     = "scheduler"
	ComponentVsyncTracker  = "vsync_tracker"
	ComponentVsyncDispatch = "vsync_dispatch"
	ComponentVsyncReactor  = "vsync_reactor"
	ComponentEventThread   = "event_thread"
	ComponentOneShotTimer  = "one_shot_timer"
	ComponentThermal       = "thermal_monitor"
	ComponentWatchdog      = "vsync_watchdog"
)

var (
	namespace = "helio"
	subsystem = "core"

	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors encountered by component",
		},
		[]string{"component", "instance"},
	)

	modeSwitches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mode_switches_total",
			Help:      "Total number of display mode switches by trigger",
		},
		[]string{"trigger"},
	)

	currentRefreshRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "refresh_rate_hz",
			Help:      "Refresh rate of the currently chosen display mode",
		},
	)

	trackerPeriod = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "vsync_period_nanoseconds",
			Help:      "Vsync period currently estimated by the tracker",
		},
	)

	vsyncSamples = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "vsync_samples_total",
			Help:      "Hardware vsync timestamps fed to the tracker, by outcome",
		},
		[]string{"outcome"},
	)

	dispatchLateness = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_wakeup_lateness_seconds",
			Help:      "How late the dispatch thread woke relative to its scheduled wakeup",
			Buckets:   []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05},
		},
	)

	resyncRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resync_requests_total",
			Help:      "Resync requests from event connections, by outcome",
		},
		[]string{"outcome"},
	)

	frameRateOverrides = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frame_rate_overrides",
			Help:      "Number of active per-uid frame rate overrides by origin",
		},
		[]string{"origin"},
	)

	predictedVsyncParity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "predicted_vsync_parity",
			Help:      "Bit toggled at every predicted vsync when the tracer is enabled",
		},
	)

	starvationSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "vsync_starved_total_seconds",
			Help:      "Sum of the gaps since the last dispatched vsync callback, added at each watchdog check that found starvation",
		},
	)
)

// SetupMetricsEndpoint starts an HTTP server to expose metrics.
// This should be called once at application startup.
func SetupMetricsEndpoint(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.For("metrics").Errorf("metrics endpoint failed: %v", err)
		}
	}()

	return server
}

// IncErrorCount increments the error counter for a component.
func IncErrorCount(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Inc()
}

// InitErrorCounter initializes the error counter for a component.
func InitErrorCounter(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Add(0)
}

// IncModeSwitch records a display mode switch attributed to a trigger
// ("content", "timer").
func IncModeSwitch(trigger string) {
	modeSwitches.WithLabelValues(trigger).Inc()
}

// SetCurrentRefreshRate publishes the fps of the chosen mode.
func SetCurrentRefreshRate(fps float64) {
	currentRefreshRate.Set(fps)
}

// SetTrackerPeriod publishes the tracker's current period estimate.
func SetTrackerPeriod(periodNs int64) {
	trackerPeriod.Set(float64(periodNs))
}

// IncVsyncSample counts one hardware vsync sample ("accepted", "rejected").
func IncVsyncSample(outcome string) {
	vsyncSamples.WithLabelValues(outcome).Inc()
}

// ObserveDispatchLateness records the wakeup lateness of one dispatch cycle.
func ObserveDispatchLateness(late time.Duration) {
	if late < 0 {
		late = 0
	}
	dispatchLateness.Observe(late.Seconds())
}

// IncResyncRequest counts one resync request ("forwarded", "throttled").
func IncResyncRequest(outcome string) {
	resyncRequests.WithLabelValues(outcome).Inc()
}

// SetFrameRateOverrideCount publishes the number of active overrides for
// one origin ("backdoor", "content").
func SetFrameRateOverrideCount(origin string, n int) {
	frameRateOverrides.WithLabelValues(origin).Set(float64(n))
}

// SetPredictedVsyncParity flips the tracer parity bit.
func SetPredictedVsyncParity(bit bool) {
	v := 0.0
	if bit {
		v = 1.0
	}
	predictedVsyncParity.Set(v)
}

// AddStarvationTime increases the starvation counter by the specified seconds.
func AddStarvationTime(seconds float64) {
	starvationSeconds.Add(seconds)
}
