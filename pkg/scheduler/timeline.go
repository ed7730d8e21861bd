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

// OnNewVsyncPeriodChangeTimeline records when a period change becomes
// visible. Applied times reported absurdly far ahead are clamped to the
// lookahead bound.
func (s *Scheduler) OnNewVsyncPeriodChangeTimeline(timeline display.VsyncPeriodChangeTimeline) {
	if timeline.RefreshRequired {
		s.callback.RepaintEverythingForHWC()
	}

	s.timelineMu.Lock()
	defer s.timelineMu.Unlock()

	stored := timeline
	if maxApplied := s.schedule.Clock.Now() + constants.MaxVsyncAppliedLookahead.Nanoseconds(); stored.AppliedTime > maxApplied {
		stored.AppliedTime = maxApplied
	}
	s.lastTimeline = &stored
}

// OnDisplayRefreshed checks the pending timeline against a completed
// refresh and keeps repainting until the required refresh time has passed.
func (s *Scheduler) OnDisplayRefreshed(timestamp int64) {
	callRepaint := false

	s.timelineMu.Lock()
	if s.lastTimeline != nil && s.lastTimeline.RefreshRequired {
		if s.lastTimeline.RefreshTime < timestamp {
			s.lastTimeline.RefreshRequired = false
		} else {
			// The required refresh is still ahead; ask for another frame.
			callRepaint = true
		}
	}
	s.timelineMu.Unlock()

	if callRepaint {
		s.callback.RepaintEverythingForHWC()
	}
}
