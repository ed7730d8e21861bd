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
	"github.com/heliowm/helio-core/pkg/display"
)

// idleTimerCallback is the user-space idle path: the timer state feeds
// mode selection directly.
func (s *Scheduler) idleTimerCallback(state TimerState) {
	if !s.handleIdleTimeout.Load() {
		return
	}

	handleTimerStateChanged(s, &s.features.IdleTimer, state)
}

// kernelIdleTimerCallback bypasses the feature state: the kernel parks the
// display itself; user space only keeps the vsync model coherent around
// the rate threshold.
func (s *Scheduler) kernelIdleTimerCallback(state TimerState) {
	rate := s.configs.GetCurrentRefreshRate()
	threshold := display.Fps(constants.KernelTimerFpsThreshold)

	if state == TimerReset && rate.Fps.GreaterThanWithMargin(threshold) {
		// Below the threshold the rate during power collapse is the same,
		// so there is nothing to resync.
		s.ResyncToHardwareVsync(true, rate.VsyncPeriod, false)
	} else if state == TimerExpired && rate.Fps.LessThanOrEqualWithMargin(threshold) {
		// No frames are being pushed; drop the interrupts until needed.
		s.DisableHardwareVsync(false)
	}

	s.callback.KernelTimerChanged(state == TimerExpired)
}

// touchTimerCallback translates the timer state into touch activity. A
// transition into the active state clears layer history so rate detection
// re-seeds against the interaction.
func (s *Scheduler) touchTimerCallback(state TimerState) {
	touch := TouchInactive
	if state == TimerReset {
		touch = TouchActive
	}

	if handleTimerStateChanged(s, &s.features.Touch, touch) {
		s.history.Clear()
	}
}

// displayPowerTimerCallback feeds the post-power grace period into mode
// selection.
func (s *Scheduler) displayPowerTimerCallback(state TimerState) {
	handleTimerStateChanged(s, &s.features.DisplayPowerTimer, state)
}
