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
	"github.com/heliowm/helio-core/pkg/constants"
	"github.com/heliowm/helio-core/pkg/metrics"
	"github.com/heliowm/helio-core/pkg/vsync"
)

// EnableHardwareVsync turns hardware vsync interrupts on, resetting the
// tracker model, provided hardware vsync is available and not already on.
func (s *Scheduler) EnableHardwareVsync() {
	s.hwVsyncMu.Lock()
	enable := !s.primaryHwVsyncEnabled && s.hwVsyncAvailable
	if enable {
		s.schedule.Tracker.ResetModel()
		s.primaryHwVsyncEnabled = true
	}
	s.hwVsyncMu.Unlock()

	if enable {
		s.callback.SetVsyncEnabled(true)
	}
}

// DisableHardwareVsync turns hardware vsync interrupts off. makeUnavailable
// additionally blocks re-enabling until a resync makes it available again.
func (s *Scheduler) DisableHardwareVsync(makeUnavailable bool) {
	s.hwVsyncMu.Lock()
	disable := s.primaryHwVsyncEnabled
	if disable {
		s.primaryHwVsyncEnabled = false
	}
	if makeUnavailable {
		s.hwVsyncAvailable = false
	}
	s.hwVsyncMu.Unlock()

	if disable {
		s.callback.SetVsyncEnabled(false)
	}
}

// ResyncToHardwareVsync re-aims the vsync model at period. With
// makeAvailable it first unblocks hardware vsync; otherwise the call is a
// no-op while unavailable. Non-positive periods are ignored.
func (s *Scheduler) ResyncToHardwareVsync(makeAvailable bool, period int64, force bool) {
	s.hwVsyncMu.Lock()
	if makeAvailable {
		s.hwVsyncAvailable = true
	} else if !s.hwVsyncAvailable {
		// Hardware vsync is not currently available, so abort the resync
		// attempt for now.
		s.hwVsyncMu.Unlock()

		return
	}
	s.hwVsyncMu.Unlock()

	if period <= 0 {
		return
	}

	s.setVsyncPeriod(period, force)
}

// setVsyncPeriod starts a period transition on the reactor and makes sure
// samples will flow: disabled or forced resyncs reset the model and turn
// hardware vsync back on. A forced resync leaves the in-flight transition
// target untouched on the reactor.
func (s *Scheduler) setVsyncPeriod(period int64, force bool) {
	s.schedule.Reactor.StartPeriodTransition(period)

	s.hwVsyncMu.Lock()
	enable := !s.primaryHwVsyncEnabled || force
	if enable {
		s.schedule.Tracker.ResetModel()
		s.primaryHwVsyncEnabled = true
	}
	s.hwVsyncMu.Unlock()

	if enable {
		s.callback.SetVsyncEnabled(true)
	}
}

// resync nudges the vsync model at the current policy period, at most once
// per throttle window.
func (s *Scheduler) resync() {
	now := s.schedule.Clock.Now()
	last := s.lastResyncTime.Load()

	if now-last <= constants.ResyncIgnoreDelay.Nanoseconds() ||
		!s.lastResyncTime.CompareAndSwap(last, now) {
		metrics.IncResyncRequest("throttled")

		return
	}

	metrics.IncResyncRequest("forwarded")
	s.ResyncToHardwareVsync(false, s.configs.GetCurrentRefreshRate().VsyncPeriod, false)
}

// resyncAndRefresh is the app connection's vsync-request callback: resync,
// and when the display was idled, repaint and force the model back onto
// hardware vsync.
func (s *Scheduler) resyncAndRefresh() {
	s.resync()

	if !s.displayIdle.Load() {
		return
	}

	rate := s.configs.GetCurrentRefreshRate()
	s.callback.RepaintEverythingForHWC()
	s.ResyncToHardwareVsync(true, rate.VsyncPeriod, true)
	s.displayIdle.Store(false)
}

// AddResyncSample feeds one hardware vsync timestamp through the reactor
// and follows its enable/disable verdict. periodFlushed reports whether an
// in-flight period transition completed with this sample.
func (s *Scheduler) AddResyncSample(timestamp int64, hwcPeriod *int64) (periodFlushed bool) {
	needsHwVsync := false

	s.hwVsyncMu.Lock()
	if s.primaryHwVsyncEnabled {
		periodFlushed, needsHwVsync = s.schedule.Reactor.AddHwVsyncTimestamp(timestamp, hwcPeriod)
	}
	s.hwVsyncMu.Unlock()

	if needsHwVsync {
		s.EnableHardwareVsync()
	} else {
		s.DisableHardwareVsync(false)
	}

	return periodFlushed
}

// AddPresentFence hands a presentation fence to the reactor and follows
// its enable/disable verdict.
func (s *Scheduler) AddPresentFence(fence vsync.FenceTime) {
	if s.schedule.Reactor.AddPresentFence(fence) {
		s.EnableHardwareVsync()
	} else {
		s.DisableHardwareVsync(false)
	}
}

// SetIgnorePresentFences controls whether fences count as model evidence.
func (s *Scheduler) SetIgnorePresentFences(ignore bool) {
	s.schedule.Reactor.SetIgnorePresentFences(ignore)
}
