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

// Package scheduler is the refresh-rate and vsync orchestrator. It owns
// the vsync schedule, the inactivity timers, the connection registry and
// the mode-selection state, and drives the host through the Callback
// interface.
//
// Lock order: registryMu, featureMu then overridesMu, hwVsyncMu,
// timelineMu. No lock is held across a Callback invocation.
package scheduler

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heliowm/helio-core/pkg/clock"
	"github.com/heliowm/helio-core/pkg/display"
	"github.com/heliowm/helio-core/pkg/eventthread"
	"github.com/heliowm/helio-core/pkg/layerhistory"
	"github.com/heliowm/helio-core/pkg/logger"
	"github.com/heliowm/helio-core/pkg/metrics"
	"github.com/heliowm/helio-core/pkg/policy"
	"github.com/heliowm/helio-core/pkg/timer"
	"github.com/heliowm/helio-core/pkg/vsync"
	"go.uber.org/zap"
)

// ConnectionHandle identifies one vsync event stream. Handles increase
// monotonically and are never reused; zero is invalid.
type ConnectionHandle uint64

// InvalidHandle is the zero, never-registered handle.
const InvalidHandle ConnectionHandle = 0

// Options is the process-wide scheduler configuration, read once.
type Options struct {
	// SupportKernelTimer selects the kernel-driven idle callback.
	SupportKernelTimer bool
	// UseContentDetection controls layer vote-type selection.
	UseContentDetection bool

	// Timer intervals; zero disables the timer.
	IdleTimerInterval         time.Duration
	TouchTimerInterval        time.Duration
	DisplayPowerTimerInterval time.Duration

	// ShowPredictedVsync installs the predicted-vsync tracer.
	ShowPredictedVsync bool
	// TraceVsync logs every delivered vsync event.
	TraceVsync bool
}

// connection is one registry entry: the event thread, the scheduler's own
// connection on it, and whether its vsync requests trigger repaints.
type connection struct {
	thread          *eventthread.EventThread
	conn            *eventthread.Connection
	triggersRefresh bool
}

// Scheduler owns mode selection, hardware vsync control, per-uid override
// arbitration and the connection registry for one physical display.
type Scheduler struct {
	options  Options
	schedule *vsync.Schedule
	configs  policy.Configs
	history  layerhistory.History
	callback Callback

	registryMu   sync.Mutex
	connections  map[ConnectionHandle]*connection
	nextHandleID uint64

	featureMu sync.Mutex
	features  Features

	overridesMu        sync.Mutex
	overridesBackdoor  map[uint32]display.Fps
	overridesByContent map[uint32]display.Fps

	hwVsyncMu             sync.Mutex
	primaryHwVsyncEnabled bool
	hwVsyncAvailable      bool

	timelineMu   sync.Mutex
	lastTimeline *display.VsyncPeriodChangeTimeline

	lastResyncTime    atomic.Int64
	displayIdle       atomic.Bool
	thermalFpsBits    atomic.Uint64
	handleIdleTimeout atomic.Bool

	idleTimer         *timer.OneShotTimer
	touchTimer        *timer.OneShotTimer
	displayPowerTimer *timer.OneShotTimer

	injectorMu      sync.Mutex
	injectVSyncs    bool
	injectorHandle  ConnectionHandle
	injectorSource  *eventthread.InjectVSyncSource

	tracer  *vsync.PredictedVsyncTracer
	journal *modeChangeJournal

	log *zap.SugaredLogger
}

// New creates the scheduler, builds its vsync schedule and starts the
// configured inactivity timers. Hardware vsync starts disabled.
func New(c clock.Clock, configs policy.Configs, history layerhistory.History, callback Callback, options Options) *Scheduler {
	s := &Scheduler{
		options:            options,
		schedule:           vsync.NewSchedule(c),
		configs:            configs,
		history:            history,
		callback:           callback,
		connections:        make(map[ConnectionHandle]*connection),
		nextHandleID:       1,
		overridesBackdoor:  make(map[uint32]display.Fps),
		overridesByContent: make(map[uint32]display.Fps),
		journal:            newModeChangeJournal(),
		log:                logger.For(logger.ComponentScheduler),
	}
	s.features.IsDisplayPowerStateNormal = true
	s.handleIdleTimeout.Store(true)
	s.lastResyncTime.Store(math.MinInt64 / 2)

	metrics.InitErrorCounter(metrics.ComponentScheduler, "core")

	if options.ShowPredictedVsync {
		s.tracer = vsync.NewPredictedVsyncTracer(s.schedule.Dispatch)
	}

	if options.IdleTimerInterval > 0 {
		cb := s.idleTimerCallback
		if options.SupportKernelTimer {
			cb = s.kernelIdleTimerCallback
		}
		s.idleTimer = timer.New("IdleTimer", options.IdleTimerInterval,
			func() { cb(TimerReset) },
			func() { cb(TimerExpired) })
		s.idleTimer.Start()
	}

	if options.TouchTimerInterval > 0 {
		s.touchTimer = timer.New("TouchTimer", options.TouchTimerInterval,
			func() { s.touchTimerCallback(TimerReset) },
			func() { s.touchTimerCallback(TimerExpired) })
		s.touchTimer.Start()
	}

	if options.DisplayPowerTimerInterval > 0 {
		s.displayPowerTimer = timer.New("DisplayPowerTimer", options.DisplayPowerTimerInterval,
			func() { s.displayPowerTimerCallback(TimerReset) },
			func() { s.displayPowerTimerCallback(TimerExpired) })
		s.displayPowerTimer.Start()
	}

	callback.SetVsyncEnabled(false)

	return s
}

// Stop joins the timer goroutines and tears down the vsync schedule. Must
// be called exactly once; the scheduler is unusable afterwards.
func (s *Scheduler) Stop() {
	// Timers first so no callback races the teardown of the rest.
	if s.displayPowerTimer != nil {
		s.displayPowerTimer.Stop()
	}
	if s.touchTimer != nil {
		s.touchTimer.Stop()
	}
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}

	if s.tracer != nil {
		s.tracer.Close()
	}

	s.registryMu.Lock()
	conns := make([]*connection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.connections = make(map[ConnectionHandle]*connection)
	s.registryMu.Unlock()

	for _, c := range conns {
		c.thread.Close()
	}

	s.schedule.Close()
}

// Schedule exposes the vsync subsystem for collaborators that phase work
// against it.
func (s *Scheduler) Schedule() *vsync.Schedule {
	return s.schedule
}

// GetDisplayStatInfo returns the next predicted vsync at or after now and
// the current period.
func (s *Scheduler) GetDisplayStatInfo(now int64) display.StatInfo {
	return display.StatInfo{
		VsyncTime:   s.schedule.Tracker.NextAnticipatedVSyncTimeFrom(now),
		VsyncPeriod: s.schedule.Tracker.CurrentPeriod(),
	}
}

// GetPreviousVsyncFrom returns the vsync instant one period before the
// expected present time.
func (s *Scheduler) GetPreviousVsyncFrom(expectedPresentTime int64) int64 {
	return expectedPresentTime - s.schedule.Tracker.CurrentPeriod()
}

// SetIdleState marks the display idled by the host; the next vsync request
// from the app connection repaints and resyncs.
func (s *Scheduler) SetIdleState() {
	s.displayIdle.Store(true)
}

// SetHandleIdleTimeout controls whether the user-space idle timer feeds
// mode selection.
func (s *Scheduler) SetHandleIdleTimeout(handle bool) {
	s.handleIdleTimeout.Store(handle)
}

// UpdateThermalFps installs the thermal cap; zero clears it.
func (s *Scheduler) UpdateThermalFps(fps display.Fps) {
	s.thermalFpsBits.Store(math.Float64bits(float64(fps)))
	s.history.UpdateThermalFps(fps)
}

func (s *Scheduler) thermalFps() display.Fps {
	return display.Fps(math.Float64frombits(s.thermalFpsBits.Load()))
}

// ResetIdleTimer rearms the idle timer on compositor activity.
func (s *Scheduler) ResetIdleTimer() {
	if s.idleTimer != nil {
		s.idleTimer.Reset()
	}
}

// NotifyTouchEvent rearms the touch timer, and the idle timer too when the
// kernel owns idleness.
func (s *Scheduler) NotifyTouchEvent() {
	if s.touchTimer == nil {
		return
	}

	s.touchTimer.Reset()

	if s.options.SupportKernelTimer && s.idleTimer != nil {
		s.idleTimer.Reset()
	}
}

// SetDisplayPowerState records whether the display is in normal power
// operation and boosts via the display-power timer.
func (s *Scheduler) SetDisplayPowerState(normal bool) {
	s.featureMu.Lock()
	s.features.IsDisplayPowerStateNormal = normal
	s.featureMu.Unlock()

	if s.displayPowerTimer != nil {
		s.displayPowerTimer.Reset()
	}

	// The power event boosts to performance; drop stale activity so rate
	// detection re-seeds against the new state.
	s.history.Clear()
}
