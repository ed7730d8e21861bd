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
	"sort"

	"github.com/heliowm/helio-core/pkg/display"
	"github.com/heliowm/helio-core/pkg/eventthread"
	"github.com/heliowm/helio-core/pkg/metrics"
	"github.com/heliowm/helio-core/pkg/policy"
)

// GetFrameRateOverride returns the effective override for uid: the
// administrative backdoor shadows the content-derived value.
func (s *Scheduler) GetFrameRateOverride(uid uint32) (display.Fps, bool) {
	if !s.configs.SupportsFrameRateOverride() {
		return 0, false
	}

	s.overridesMu.Lock()
	defer s.overridesMu.Unlock()

	if fps, ok := s.overridesBackdoor[uid]; ok {
		return fps, true
	}
	if fps, ok := s.overridesByContent[uid]; ok {
		return fps, true
	}

	return 0, false
}

// SetPreferredRefreshRateForUid installs or erases a backdoor override.
// Rates in (0, 1) are invalid and dropped; zero erases.
func (s *Scheduler) SetPreferredRefreshRateForUid(override display.FrameRateOverride) {
	if override.Fps > 0 && override.Fps < 1 {
		s.log.Debugf("dropping invalid frame rate override %s for uid %d", override.Fps, override.UID)

		return
	}

	s.overridesMu.Lock()
	defer s.overridesMu.Unlock()

	if override.Fps != 0 {
		s.overridesBackdoor[override.UID] = override.Fps
	} else {
		delete(s.overridesBackdoor, override.UID)
	}

	metrics.SetFrameRateOverrideCount("backdoor", len(s.overridesBackdoor))
}

// ActiveFrameRateOverrides flattens both maps into the set handed to event
// threads, backdoor entries shadowing content entries, ordered by uid.
func (s *Scheduler) ActiveFrameRateOverrides() []display.FrameRateOverride {
	s.overridesMu.Lock()

	overrides := make([]display.FrameRateOverride, 0, len(s.overridesBackdoor)+len(s.overridesByContent))
	for uid, fps := range s.overridesBackdoor {
		overrides = append(overrides, display.FrameRateOverride{UID: uid, Fps: fps})
	}
	for uid, fps := range s.overridesByContent {
		if _, shadowed := s.overridesBackdoor[uid]; !shadowed {
			overrides = append(overrides, display.FrameRateOverride{UID: uid, Fps: fps})
		}
	}
	s.overridesMu.Unlock()

	sort.Slice(overrides, func(i, j int) bool { return overrides[i].UID < overrides[j].UID })

	return overrides
}

// isVsyncValid reports whether a vsync at expectedVsync should reach uid:
// either no override exists, or the instant lies on the override's
// sub-harmonic.
func (s *Scheduler) isVsyncValid(expectedVsync int64, uid uint32) bool {
	fps, ok := s.GetFrameRateOverride(uid)
	if !ok {
		return true
	}

	return s.schedule.Tracker.IsVSyncInPhase(expectedVsync, fps)
}

// makeThrottleVsyncCallback builds the per-uid suppression predicate for
// event threads. Nil when overrides are unsupported.
func (s *Scheduler) makeThrottleVsyncCallback() eventthread.ThrottleVsyncCallback {
	if !s.configs.SupportsFrameRateOverride() {
		return nil
	}

	return func(expectedVsync int64, uid uint32) bool {
		return !s.isVsyncValid(expectedVsync, uid)
	}
}

// makeGetVsyncPeriodFunction builds the override-aware period lookup for
// event threads: a multiple of the base period, divider clamped to at
// least one.
func (s *Scheduler) makeGetVsyncPeriodFunction() eventthread.GetVsyncPeriodFunction {
	return func(uid uint32) int64 {
		current := s.configs.GetCurrentRefreshRate()
		basePeriod := current.VsyncPeriod

		fps, ok := s.GetFrameRateOverride(uid)
		if !ok {
			return basePeriod
		}

		divider := policy.GetFrameRateDivider(current.Fps, fps)
		if divider <= 1 {
			return basePeriod
		}

		return basePeriod * int64(divider)
	}
}

// updateFrameRateOverridesLocked refreshes the content-derived map from
// the policy. Frozen while idle; the backdoor map is never touched here.
// Returns true when the content map changed beyond the rate margin.
// Caller holds featureMu.
func (s *Scheduler) updateFrameRateOverridesLocked(considered policy.GlobalSignals, displayFps display.Fps) bool {
	if !s.configs.SupportsFrameRateOverride() {
		return false
	}

	if considered.Idle {
		return false
	}

	fresh := s.configs.GetFrameRateOverrides(s.features.ContentRequirements, displayFps, considered.Touch)

	s.overridesMu.Lock()
	defer s.overridesMu.Unlock()

	if overrideMapsEqual(s.overridesByContent, fresh) {
		return false
	}

	s.overridesByContent = fresh
	metrics.SetFrameRateOverrideCount("content", len(fresh))

	return true
}

func overrideMapsEqual(a, b map[uint32]display.Fps) bool {
	if len(a) != len(b) {
		return false
	}

	for uid, fps := range a {
		other, ok := b[uid]
		if !ok || !fps.EqualsWithMargin(other) {
			return false
		}
	}

	return true
}
