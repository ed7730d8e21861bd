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

package vsync_test

import (
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/heliowm/helio-core/pkg/clock"
	"github.com/heliowm/helio-core/pkg/display"
	"github.com/heliowm/helio-core/pkg/vsync"
)

// stubTracker is a fixed-grid tracker for dispatch and reactor tests.
type stubTracker struct {
	mu sync.Mutex

	period     int64
	phase      int64
	inPhase    bool
	needsMore  bool
	resetCount int
}

func (t *stubTracker) AddVsyncTimestamp(int64) bool { return true }

func (t *stubTracker) NextAnticipatedVSyncTimeFrom(now int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := (now - t.phase + t.period - 1) / t.period

	return t.phase + k*t.period
}

func (t *stubTracker) CurrentPeriod() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.period
}

func (t *stubTracker) IsVSyncInPhase(int64, display.Fps) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.inPhase
}

func (t *stubTracker) NeedsMoreSamples() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.needsMore
}

func (t *stubTracker) ResetModel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetCount++
}

func (t *stubTracker) setInPhase(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inPhase = v
}

var _ = Describe("Dispatch", func() {
	var (
		tracker  *stubTracker
		clk      *clock.SystemClock
		dispatch *vsync.Dispatch
	)

	BeforeEach(func() {
		tracker = &stubTracker{period: 50 * ms}
		clk = clock.NewSystemClock()
		dispatch = vsync.NewDispatch(tracker, clk)
	})

	AfterEach(func() {
		dispatch.Close()
	})

	It("should wake a scheduled callback ahead of the predicted vsync", func() {
		fired := make(chan [3]int64, 1)
		reg := dispatch.Register(func(vsyncTime, wakeupTime, readyTime int64) {
			fired <- [3]int64{vsyncTime, wakeupTime, readyTime}
		}, "test")

		predicted, err := reg.Schedule(vsync.ScheduleTiming{
			WorkDuration:  10 * ms,
			ReadyDuration: 5 * ms,
		})
		Expect(err).NotTo(HaveOccurred())

		var got [3]int64
		Eventually(fired, time.Second).Should(Receive(&got))
		Expect(got[0]).To(Equal(predicted))
		Expect(got[1]).To(Equal(predicted - 10*ms))
		Expect(got[2]).To(Equal(predicted - 5*ms))
	})

	It("should support re-entrant scheduling from inside the callback", func() {
		var count atomic.Int32
		var reg *vsync.Registration
		reg = dispatch.Register(func(vsyncTime, _, _ int64) {
			if count.Add(1) < 3 {
				_, _ = reg.Schedule(vsync.ScheduleTiming{WorkDuration: 5 * ms, EarliestVsync: vsyncTime + 1})
			}
		}, "reentrant")

		_, err := reg.Schedule(vsync.ScheduleTiming{WorkDuration: 5 * ms})
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() int32 { return count.Load() }, 2*time.Second).Should(BeNumerically(">=", 3))
	})

	It("should not fire a cancelled registration", func() {
		fired := make(chan struct{}, 1)
		reg := dispatch.Register(func(_, _, _ int64) {
			fired <- struct{}{}
		}, "cancelled")

		_, err := reg.Schedule(vsync.ScheduleTiming{WorkDuration: 5 * ms})
		Expect(err).NotTo(HaveOccurred())
		reg.Cancel()

		Consistently(fired, 150*time.Millisecond).ShouldNot(Receive())

		_, err = reg.Schedule(vsync.ScheduleTiming{WorkDuration: 5 * ms})
		Expect(err).To(MatchError(vsync.ErrCancelled))
	})

	It("should keep the promised vsync when rescheduled close to it", func() {
		// A frozen manual clock keeps the registration armed so the
		// move-threshold logic can be probed deterministically.
		manual := clock.NewManualClock(0)
		frozen := vsync.NewDispatch(tracker, manual)
		defer frozen.Close()

		reg := frozen.Register(func(_, _, _ int64) {}, "sticky")

		first, err := reg.Schedule(vsync.ScheduleTiming{WorkDuration: 1 * ms})
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(Equal(50 * ms))

		// Far from the promise: a new schedule re-aims.
		moved, err := reg.Schedule(vsync.ScheduleTiming{WorkDuration: 1 * ms, EarliestVsync: 60 * ms})
		Expect(err).NotTo(HaveOccurred())
		Expect(moved).To(Equal(100 * ms))

		// Within the move threshold of the promise: the promise holds.
		manual.SetNow(98 * ms)
		kept, err := reg.Schedule(vsync.ScheduleTiming{WorkDuration: 1 * ms, EarliestVsync: 500 * ms})
		Expect(err).NotTo(HaveOccurred())
		Expect(kept).To(Equal(moved))
	})
})
