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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/heliowm/helio-core/pkg/clock"
	"github.com/heliowm/helio-core/pkg/constants"
	"github.com/heliowm/helio-core/pkg/logger"
	"github.com/heliowm/helio-core/pkg/metrics"
	"go.uber.org/zap"
)

// ErrCancelled is returned from Schedule on a cancelled registration.
var ErrCancelled = errors.New("registration cancelled")

// Callback is invoked on the dispatch goroutine. vsyncTime is the predicted
// vsync the wake was aimed at, wakeupTime the scheduled wake instant and
// readyTime the instant the frame must be ready.
type Callback func(vsyncTime, wakeupTime, readyTime int64)

// ScheduleTiming describes one requested wakeup relative to a vsync.
type ScheduleTiming struct {
	// WorkDuration is the lead time before vsync at which to wake.
	WorkDuration int64
	// ReadyDuration is the lead time before vsync at which the produced
	// frame must be ready.
	ReadyDuration int64
	// EarliestVsync is the earliest vsync the caller will accept.
	EarliestVsync int64
}

// Dispatch wakes registered callbacks a configurable lead time before each
// predicted vsync. A single goroutine waits on the earliest pending wakeup;
// callbacks run on that goroutine and may reschedule themselves
// re-entrantly. Late wakes still fire; callbacks are never dropped.
type Dispatch struct {
	mu sync.Mutex

	tracker Tracker
	clock   clock.Clock

	timerSlack    int64
	moveThreshold int64

	registrations map[*Registration]struct{}

	rearm  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log *zap.SugaredLogger
}

// Registration is one named callback slot in the dispatch timer queue.
type Registration struct {
	d    *Dispatch
	name string
	cb   Callback

	armed       bool
	targetVsync int64
	wakeupTime  int64
	readyTime   int64

	cancelled bool
}

// NewDispatch creates the dispatch and starts its timer goroutine.
func NewDispatch(tracker Tracker, c clock.Clock) *Dispatch {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatch{
		tracker:       tracker,
		clock:         c,
		timerSlack:    constants.TimerSlack.Nanoseconds(),
		moveThreshold: constants.VsyncMoveThreshold.Nanoseconds(),
		registrations: make(map[*Registration]struct{}),
		rearm:         make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
		log:           logger.For(logger.ComponentVsyncDispatch),
	}

	d.wg.Add(1)
	go d.timerLoop()

	return d
}

// Register adds a named callback. The registration starts unarmed.
func (d *Dispatch) Register(cb Callback, name string) *Registration {
	r := &Registration{d: d, name: name, cb: cb}

	d.mu.Lock()
	d.registrations[r] = struct{}{}
	d.mu.Unlock()

	return r
}

// Schedule arms the registration for a wake at predictedVsync−WorkDuration
// and returns the predicted vsync. A caller already within the move
// threshold of its previously promised vsync keeps that promise instead of
// being re-aimed at a later one.
func (r *Registration) Schedule(timing ScheduleTiming) (int64, error) {
	d := r.d

	d.mu.Lock()
	if r.cancelled {
		d.mu.Unlock()

		return 0, ErrCancelled
	}

	now := d.clock.Now()
	if r.armed && now >= r.targetVsync-d.moveThreshold {
		vsync := r.targetVsync
		d.mu.Unlock()

		return vsync, nil
	}

	earliest := timing.EarliestVsync
	if t := now + timing.WorkDuration; t > earliest {
		earliest = t
	}

	vsync := d.tracker.NextAnticipatedVSyncTimeFrom(earliest)
	r.armed = true
	r.targetVsync = vsync
	r.wakeupTime = vsync - timing.WorkDuration
	r.readyTime = vsync - timing.ReadyDuration
	d.mu.Unlock()

	d.kick()

	return vsync, nil
}

// Cancel disarms the registration and removes it from the queue. Safe to
// call from a callback.
func (r *Registration) Cancel() {
	d := r.d

	d.mu.Lock()
	r.armed = false
	r.cancelled = true
	delete(d.registrations, r)
	d.mu.Unlock()

	d.kick()
}

// Close stops the timer goroutine. Armed registrations do not fire after
// Close returns.
func (d *Dispatch) Close() {
	d.cancel()
	d.wg.Wait()
}

// kick wakes the timer goroutine to recompute its earliest wakeup.
func (d *Dispatch) kick() {
	select {
	case d.rearm <- struct{}{}:
	default:
	}
}

// earliestWakeup returns the soonest armed wakeup, if any.
func (d *Dispatch) earliestWakeup() (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var earliest int64
	found := false
	for r := range d.registrations {
		if r.armed && (!found || r.wakeupTime < earliest) {
			earliest = r.wakeupTime
			found = true
		}
	}

	return earliest, found
}

func (d *Dispatch) timerLoop() {
	defer d.wg.Done()

	for {
		wakeup, armed := d.earliestWakeup()
		if !armed {
			select {
			case <-d.ctx.Done():
				return
			case <-d.rearm:
			}

			continue
		}

		if delay := wakeup - d.clock.Now(); delay > 0 {
			timer := time.NewTimer(time.Duration(delay))
			select {
			case <-d.ctx.Done():
				timer.Stop()

				return
			case <-d.rearm:
				timer.Stop()

				continue
			case <-timer.C:
			}
		}

		d.fireDue()
	}
}

// fireDue invokes every armed callback whose wakeup has arrived. The lock
// is dropped before the callbacks run so they can reschedule.
func (d *Dispatch) fireDue() {
	now := d.clock.Now()

	type firing struct {
		cb                   Callback
		vsync, wakeup, ready int64
	}

	var due []firing

	d.mu.Lock()
	for r := range d.registrations {
		if r.armed && r.wakeupTime <= now+d.timerSlack {
			r.armed = false
			due = append(due, firing{r.cb, r.targetVsync, r.wakeupTime, r.readyTime})
		}
	}
	d.mu.Unlock()

	for _, f := range due {
		metrics.ObserveDispatchLateness(time.Duration(now - f.wakeup))
		f.cb(f.vsync, f.wakeup, f.ready)
	}
}

// Dump summarizes the queue state for diagnostics.
func (d *Dispatch) Dump() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := fmt.Sprintf("VsyncDispatch: %d registrations\n", len(d.registrations))
	for r := range d.registrations {
		if r.armed {
			s += fmt.Sprintf("  %s: armed, vsync=%d wakeup=%d\n", r.name, r.targetVsync, r.wakeupTime)
		} else {
			s += fmt.Sprintf("  %s: idle\n", r.name)
		}
	}

	return s
}
