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

package scheduler

import (
	"time"

	"github.com/heliowm/helio-core/pkg/constants"
	"github.com/heliowm/helio-core/pkg/display"
	"github.com/heliowm/helio-core/pkg/eventthread"
	"github.com/heliowm/helio-core/pkg/metrics"
)

// CreateConnection builds an event thread backed by a dispatch source with
// the given lead times and registers it. The connection named "app" is the
// one whose vsync requests also repaint an idled display.
func (s *Scheduler) CreateConnection(name string, tokenManager *eventthread.TokenManager,
	workDuration, readyDuration time.Duration,
	intercept eventthread.InterceptVSyncsCallback) ConnectionHandle {
	source := eventthread.NewDispSyncSource(s.schedule.Dispatch, workDuration, readyDuration, s.options.TraceVsync, name)
	thread := eventthread.New(name, source, tokenManager, intercept,
		s.makeThrottleVsyncCallback(), s.makeGetVsyncPeriodFunction())

	return s.registerConnection(thread, name == constants.AppConnectionName)
}

// registerConnection records an event thread under a fresh handle.
func (s *Scheduler) registerConnection(thread *eventthread.EventThread, triggersRefresh bool) ConnectionHandle {
	conn := s.newSchedulerConnection(thread, triggersRefresh)

	s.registryMu.Lock()
	handle := ConnectionHandle(s.nextHandleID)
	s.nextHandleID++
	s.connections[handle] = &connection{thread: thread, conn: conn, triggersRefresh: triggersRefresh}
	s.registryMu.Unlock()

	s.log.Debugf("created connection handle %d", handle)

	return handle
}

// newSchedulerConnection opens the scheduler's own connection on the
// thread, selecting the vsync-request callback. Refresh must only be
// triggered from the app connection; wiring it to a compositor-side
// connection loops through requestNextVsync forever.
func (s *Scheduler) newSchedulerConnection(thread *eventthread.EventThread, triggersRefresh bool) *eventthread.Connection {
	if triggersRefresh {
		return thread.CreateEventConnection(0, s.resyncAndRefresh, nil)
	}

	return thread.CreateEventConnection(0, s.resync, nil)
}

// threadFor resolves a handle, logging and returning nil for unknown ones.
func (s *Scheduler) threadFor(handle ConnectionHandle) *eventthread.EventThread {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	c, ok := s.connections[handle]
	if !ok {
		s.log.Errorf("invalid connection handle %d", handle)
		metrics.IncErrorCount(metrics.ComponentScheduler, "registry")

		return nil
	}

	return c.thread
}

// CreateDisplayEventConnection opens a client connection on the event
// thread behind handle. Returns nil for unknown handles.
func (s *Scheduler) CreateDisplayEventConnection(handle ConnectionHandle, uid uint32,
	triggersRefresh bool, onEvent func(eventthread.Event)) *eventthread.Connection {
	s.registryMu.Lock()
	c, ok := s.connections[handle]
	s.registryMu.Unlock()

	if !ok {
		s.log.Errorf("invalid connection handle %d", handle)
		metrics.IncErrorCount(metrics.ComponentScheduler, "registry")

		return nil
	}

	resync := s.resync
	if triggersRefresh {
		resync = s.resyncAndRefresh
	}

	return c.thread.CreateEventConnection(uid, resync, onEvent)
}

// GetEventConnection returns the scheduler's own connection for handle, or
// nil for unknown handles.
func (s *Scheduler) GetEventConnection(handle ConnectionHandle) *eventthread.Connection {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	c, ok := s.connections[handle]
	if !ok {
		s.log.Errorf("invalid connection handle %d", handle)

		return nil
	}

	return c.conn
}

// OnHotplugReceived forwards display connectivity to the event thread.
func (s *Scheduler) OnHotplugReceived(handle ConnectionHandle, connected bool) {
	if thread := s.threadFor(handle); thread != nil {
		thread.OnHotplugReceived(connected)
	}
}

// OnScreenAcquired opens the event gate on the thread behind handle.
func (s *Scheduler) OnScreenAcquired(handle ConnectionHandle) {
	if thread := s.threadFor(handle); thread != nil {
		thread.OnScreenAcquired()
	}
}

// OnScreenReleased closes the event gate on the thread behind handle.
func (s *Scheduler) OnScreenReleased(handle ConnectionHandle) {
	if thread := s.threadFor(handle); thread != nil {
		thread.OnScreenReleased()
	}
}

// OnFrameRateOverridesChanged publishes the arbitrated override set on the
// thread behind handle.
func (s *Scheduler) OnFrameRateOverridesChanged(handle ConnectionHandle) {
	overrides := s.ActiveFrameRateOverrides()

	if thread := s.threadFor(handle); thread != nil {
		thread.OnFrameRateOverridesChanged(overrides)
	}
}

// OnPrimaryDisplayModeChanged caches the reported mode for replay and
// notifies the thread behind handle.
func (s *Scheduler) OnPrimaryDisplayModeChanged(handle ConnectionHandle, modeID display.ModeID, vsyncPeriod int64) {
	s.featureMu.Lock()
	s.features.CachedModeChangedParams = &cachedModeParams{
		Handle:      handle,
		ModeID:      modeID,
		VsyncPeriod: vsyncPeriod,
	}
	// The summary was computed against the old rate; force recomputation.
	s.features.ContentRequirements = nil
	s.featureMu.Unlock()

	s.onNonPrimaryDisplayModeChanged(handle, modeID, vsyncPeriod)
}

// onNonPrimaryDisplayModeChanged notifies without touching the cache.
func (s *Scheduler) onNonPrimaryDisplayModeChanged(handle ConnectionHandle, modeID display.ModeID, vsyncPeriod int64) {
	if thread := s.threadFor(handle); thread != nil {
		thread.OnModeChanged(modeID, vsyncPeriod)
	}
}

// EventThreadConnectionCount returns the client count of the thread behind
// handle, zero for unknown handles.
func (s *Scheduler) EventThreadConnectionCount(handle ConnectionHandle) int {
	if thread := s.threadFor(handle); thread != nil {
		return thread.ConnectionCount()
	}

	return 0
}

// SetDuration changes the lead times of the thread behind handle.
func (s *Scheduler) SetDuration(handle ConnectionHandle, workDuration, readyDuration time.Duration) {
	if thread := s.threadFor(handle); thread != nil {
		thread.SetDuration(workDuration, readyDuration)
	}
}

// DumpConnection formats the thread behind handle for diagnostics.
func (s *Scheduler) DumpConnection(handle ConnectionHandle) string {
	if thread := s.threadFor(handle); thread != nil {
		return thread.Dump()
	}

	return ""
}
