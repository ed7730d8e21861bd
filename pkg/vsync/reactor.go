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

package vsync

import (
	"fmt"
	"sync"
	"time"

	"github.com/heliowm/helio-core/pkg/constants"
	"github.com/heliowm/helio-core/pkg/logger"
	"go.uber.org/zap"
)

// periodConfirmationMargin is how close a measured sample-to-sample delta
// must be to the transition target before the new period counts as flushed
// through the hardware.
const periodConfirmationMargin = int64(1500 * time.Microsecond)

// fencePhaseMargin is how close a fence signal time must be to a predicted
// vsync for the model to count as confirmed by presentation.
const fencePhaseMargin = int64(1500 * time.Microsecond)

// Reactor integrates hardware vsync timestamps and presentation fences and
// reports whether hardware vsync interrupts are still needed. It never
// toggles hardware vsync itself; the scheduler acts on its return values.
type Reactor struct {
	mu sync.Mutex

	tracker      Tracker
	pendingLimit int

	pendingFences []FenceTime

	ignorePresentFences bool

	periodTransitioning   bool
	periodTransitioningTo int64
	lastHwVsync           int64

	log *zap.SugaredLogger
}

// NewReactor creates a reactor feeding the given tracker.
func NewReactor(tracker Tracker) *Reactor {
	return &Reactor{
		tracker:      tracker,
		pendingLimit: constants.PendingFenceLimit,
		lastHwVsync:  -1,
		log:          logger.For(logger.ComponentVsyncReactor),
	}
}

// AddHwVsyncTimestamp feeds one hardware vsync timestamp. hwcPeriod is the
// composer-reported period accompanying the sample, if any. periodFlushed
// is true when an in-flight period transition was confirmed by this sample;
// needsMoreHwVsync is true while the model still wants samples.
func (r *Reactor) AddHwVsyncTimestamp(ts int64, hwcPeriod *int64) (periodFlushed, needsMoreHwVsync bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.periodTransitioning {
		if !r.periodConfirmedLocked(ts, hwcPeriod) {
			// Bridging sample from the old period. Remember it so the next
			// delta can confirm, but keep it out of the model.
			r.lastHwVsync = ts

			return false, true
		}

		r.periodTransitioning = false
		periodFlushed = true
		r.log.Debugf("period transition to %dns confirmed by sample %d", r.periodTransitioningTo, ts)
	}

	r.tracker.AddVsyncTimestamp(ts)
	r.lastHwVsync = ts

	return periodFlushed, r.tracker.NeedsMoreSamples()
}

func (r *Reactor) periodConfirmedLocked(ts int64, hwcPeriod *int64) bool {
	if hwcPeriod != nil {
		delta := *hwcPeriod - r.periodTransitioningTo
		if delta < 0 {
			delta = -delta
		}

		return delta < periodConfirmationMargin
	}

	if r.lastHwVsync < 0 {
		return false
	}

	delta := (ts - r.lastHwVsync) - r.periodTransitioningTo
	if delta < 0 {
		delta = -delta
	}

	return delta < periodConfirmationMargin
}

// AddPresentFence hands the reactor one presentation fence. Returns true
// while hardware vsync is still needed: the fence is pending, a period
// transition is in flight, or the signal time disagrees with the model.
func (r *Reactor) AddPresentFence(fence FenceTime) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ignorePresentFences {
		return true
	}

	if r.periodTransitioning {
		r.appendPendingLocked(fence)

		return true
	}

	confirmed := false
	checked := false

	evaluate := func(f FenceTime) bool {
		signal := f.SignalTime()
		if signal == SignalTimePending {
			return false
		}

		checked = true
		if r.inPhaseLocked(signal) {
			confirmed = true
		}

		return true
	}

	// Drain previously pending fences that have signaled since.
	kept := r.pendingFences[:0]
	for _, f := range r.pendingFences {
		if !evaluate(f) {
			kept = append(kept, f)
		}
	}
	r.pendingFences = kept

	if !evaluate(fence) {
		r.appendPendingLocked(fence)
	}

	if !checked {
		return true
	}

	return !confirmed
}

func (r *Reactor) appendPendingLocked(fence FenceTime) {
	r.pendingFences = append(r.pendingFences, fence)
	if len(r.pendingFences) > r.pendingLimit {
		r.pendingFences = r.pendingFences[len(r.pendingFences)-r.pendingLimit:]
	}
}

// inPhaseLocked reports whether ts lies close to a predicted vsync.
func (r *Reactor) inPhaseLocked(ts int64) bool {
	next := r.tracker.NextAnticipatedVSyncTimeFrom(ts)
	prev := next - r.tracker.CurrentPeriod()

	return next-ts < fencePhaseMargin || ts-prev < fencePhaseMargin
}

// StartPeriodTransition records a new target period. Samples arriving until
// the target is observed on the wire bridge the transition and stay out of
// the model.
func (r *Reactor) StartPeriodTransition(period int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.periodTransitioning = true
	r.periodTransitioningTo = period
	r.lastHwVsync = -1
	r.pendingFences = r.pendingFences[:0]
	r.log.Debugf("starting period transition to %dns", period)
}

// SetIgnorePresentFences controls whether fences count as model evidence.
// While ignored, AddPresentFence always reports that hardware vsync is
// needed.
func (r *Reactor) SetIgnorePresentFences(ignore bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ignorePresentFences = ignore
	if ignore {
		r.pendingFences = r.pendingFences[:0]
	}
}

// Dump summarizes the reactor state for diagnostics.
func (r *Reactor) Dump() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := fmt.Sprintf("VsyncReactor: %d pending fences, ignore=%t", len(r.pendingFences), r.ignorePresentFences)
	if r.periodTransitioning {
		s += fmt.Sprintf(", transitioning to %dns", r.periodTransitioningTo)
	}

	return s + "\n"
}
