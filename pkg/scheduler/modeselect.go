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
	"github.com/heliowm/helio-core/pkg/display"
	"github.com/heliowm/helio-core/pkg/metrics"
	"github.com/heliowm/helio-core/pkg/policy"
)

// decision is the outcome of one pass through the selection pipeline,
// carried out of the feature lock so host callbacks run lock-free.
type decision struct {
	rateChanged      bool
	newRate          display.RefreshRate
	thermalClamp     bool
	replayCached     bool
	overridesChanged bool
	considered       policy.GlobalSignals
}

// ChooseRefreshRateForContent runs the decision pipeline against a fresh
// layer-history summary. The caller throttles invocation frequency.
func (s *Scheduler) ChooseRefreshRateForContent() {
	if !s.configs.CanSwitch() {
		return
	}

	summary := s.history.Summarize(s.schedule.Clock.Now())

	s.featureMu.Lock()
	s.features.ContentRequirements = summary
	d := s.selectModeLocked()
	s.featureMu.Unlock()

	s.applyDecision(d, "content")
}

// handleTimerStateChanged is the generic decision workhorse: swap the
// stored state, rerun selection if it actually changed, and report whether
// the touch signal drove the outcome.
func handleTimerStateChanged[T comparable](s *Scheduler, current *T, newState T) bool {
	s.featureMu.Lock()
	if *current == newState {
		s.featureMu.Unlock()

		return false
	}
	*current = newState
	d := s.selectModeLocked()
	s.featureMu.Unlock()

	s.applyDecision(d, "timer")

	return d.considered.Touch
}

// selectModeLocked computes the next mode and the override refresh from
// the current Features. Caller holds featureMu; no host callback is made.
func (s *Scheduler) selectModeLocked() decision {
	newModeID, considered := s.calculateModeLocked()

	newRate, err := s.configs.GetRefreshRateFromModeID(newModeID)
	if err != nil {
		// The policy handed back a mode outside the display's set; keep the
		// current state rather than guessing.
		s.log.Errorf("mode %d unknown to policy: %v", newModeID, err)
		metrics.IncErrorCount(metrics.ComponentScheduler, "mode_select")

		return decision{}
	}

	d := decision{newRate: newRate, considered: considered}
	d.overridesChanged = s.updateFrameRateOverridesLocked(considered, newRate.Fps)

	if s.features.HasModeID && s.features.ModeID == newModeID {
		// Same mode. An event may still be owed if an earlier change was
		// swallowed while idle.
		d.replayCached = !considered.Idle

		return d
	}

	d.rateChanged = true

	thermal := s.thermalFps()
	if thermal > 0 && newRate.Fps.GreaterThanWithMargin(thermal) {
		// The thermal mode is resolved by the host outside the lock;
		// commitThermalMode finishes the feature update.
		d.thermalClamp = true

		return d
	}

	s.features.HasModeID = true
	s.features.ModeID = newModeID

	return d
}

// calculateModeLocked is the §mode-selection decision rule. Caller holds
// featureMu.
func (s *Scheduler) calculateModeLocked() (display.ModeID, policy.GlobalSignals) {
	// Outside normal display power, and during the grace period after it
	// returns, run at performance.
	if s.displayPowerTimer != nil &&
		(!s.features.IsDisplayPowerStateNormal || s.features.DisplayPowerTimer == TimerReset) {
		return s.configs.GetMaxRefreshRateByPolicy().ModeID, policy.GlobalSignals{}
	}

	touchActive := s.touchTimer != nil && s.features.Touch == TouchActive
	idle := s.idleTimer != nil && s.features.IdleTimer == TimerExpired

	rate, considered := s.configs.GetBestRefreshRate(s.features.ContentRequirements,
		policy.GlobalSignals{Touch: touchActive, Idle: idle})

	return rate.ModeID, considered
}

// applyDecision performs the side effects of one selection pass with no
// lock held.
func (s *Scheduler) applyDecision(d decision, trigger string) {
	switch {
	case d.rateChanged:
		rate := d.newRate
		if d.thermalClamp {
			rate = s.commitThermalMode(d.newRate)
		}

		event := display.ModeEventChanged
		if d.considered.Idle {
			event = display.ModeEventNone
		}

		s.journal.record(rate, event, trigger)
		metrics.IncModeSwitch(trigger)
		metrics.SetCurrentRefreshRate(float64(rate.Fps))
		s.callback.ChangeRefreshRate(rate, event)
	case d.replayCached:
		s.dispatchCachedReportedMode()
	}

	if d.overridesChanged {
		s.callback.TriggerOnFrameRateOverridesChanged()
	}
}

// commitThermalMode swaps the chosen mode for the host's nearest mode
// under the thermal cap and records it in Features.
func (s *Scheduler) commitThermalMode(chosen display.RefreshRate) display.RefreshRate {
	thermal := s.thermalFps()

	clamped, err := s.callback.GetModeFromFps(thermal)
	if err != nil {
		s.log.Errorf("no mode for thermal cap %s: %v", thermal, err)
		metrics.IncErrorCount(metrics.ComponentScheduler, "thermal")

		clamped = chosen
	}

	s.featureMu.Lock()
	s.features.HasModeID = true
	s.features.ModeID = clamped.ModeID
	s.featureMu.Unlock()

	return clamped
}

// dispatchCachedReportedMode replays the last outward mode notification if
// the current mode has drifted from what was reported. Covers events that
// an idle-suppressed selection swallowed.
func (s *Scheduler) dispatchCachedReportedMode() {
	s.featureMu.Lock()

	if !s.features.HasModeID {
		s.featureMu.Unlock()
		s.log.Warnf("no mode chosen yet, not dispatching cached mode")

		return
	}
	if s.features.CachedModeChangedParams == nil {
		s.featureMu.Unlock()
		s.log.Warnf("no cached mode params, not dispatching cached mode")

		return
	}

	modeID := s.features.ModeID

	// A mode change still in flight will dispatch its own event once the
	// display lands on it.
	if s.configs.GetCurrentRefreshRate().ModeID != modeID {
		s.featureMu.Unlock()

		return
	}

	rate, err := s.configs.GetRefreshRateFromModeID(modeID)
	if err != nil {
		s.featureMu.Unlock()
		s.log.Errorf("cached mode %d unknown: %v", modeID, err)

		return
	}

	cached := s.features.CachedModeChangedParams
	if cached.ModeID == modeID && cached.VsyncPeriod == rate.VsyncPeriod {
		s.featureMu.Unlock()

		return
	}

	cached.ModeID = modeID
	cached.VsyncPeriod = rate.VsyncPeriod
	handle := cached.Handle
	s.featureMu.Unlock()

	s.onNonPrimaryDisplayModeChanged(handle, modeID, rate.VsyncPeriod)
}

// GetPreferredModeID re-evaluates selection and returns the chosen mode,
// or false before the first selection.
func (s *Scheduler) GetPreferredModeID() (display.ModeID, bool) {
	s.featureMu.Lock()
	defer s.featureMu.Unlock()

	if !s.features.HasModeID {
		return display.InvalidModeID, false
	}

	modeID, _ := s.calculateModeLocked()
	s.features.ModeID = modeID

	return modeID, true
}
