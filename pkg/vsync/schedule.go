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

// Package vsync is the vsync subsystem: a tracker that learns the hardware
// vsync period from noisy timestamps, a dispatch that wakes callbacks ahead
// of predicted vsyncs, and a reactor that decides when hardware vsync
// interrupts are still needed.
package vsync

import (
	"github.com/heliowm/helio-core/pkg/clock"
	"github.com/heliowm/helio-core/pkg/constants"
)

// Schedule bundles the vsync subsystem for one display. The scheduler owns
// exactly one Schedule.
type Schedule struct {
	Clock    clock.Clock
	Tracker  Tracker
	Dispatch *Dispatch
	Reactor  *Reactor
}

// NewSchedule builds the tracker, dispatch and reactor around the given
// clock with the standard tuning.
func NewSchedule(c clock.Clock) *Schedule {
	tracker := NewPredictor(constants.IdealVsyncPeriod)

	return &Schedule{
		Clock:    c,
		Tracker:  tracker,
		Dispatch: NewDispatch(tracker, c),
		Reactor:  NewReactor(tracker),
	}
}

// Close stops the dispatch goroutine.
func (s *Schedule) Close() {
	s.Dispatch.Close()
}
