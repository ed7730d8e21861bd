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
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/heliowm/helio-core/pkg/vsync"
)

var _ = Describe("Reactor", func() {
	// The stub tracker predicts a fixed grid at k*period from phase 0.
	const period = int64(16667000)

	var (
		tracker *stubTracker
		reactor *vsync.Reactor
	)

	BeforeEach(func() {
		tracker = &stubTracker{period: period}
		reactor = vsync.NewReactor(tracker)
	})

	Describe("Hardware vsync timestamps", func() {
		It("should ask for more samples while the model is hungry", func() {
			tracker.needsMore = true

			flushed, needsMore := reactor.AddHwVsyncTimestamp(period, nil)
			Expect(flushed).To(BeFalse())
			Expect(needsMore).To(BeTrue())
		})

		It("should release hardware vsync once the model is fed", func() {
			tracker.needsMore = false

			_, needsMore := reactor.AddHwVsyncTimestamp(period, nil)
			Expect(needsMore).To(BeFalse())
		})
	})

	Describe("Period transitions", func() {
		const target = int64(8333333) // 120Hz

		BeforeEach(func() {
			reactor.StartPeriodTransition(target)
		})

		It("should bridge old-period samples without flushing", func() {
			flushed, needsMore := reactor.AddHwVsyncTimestamp(0, nil)
			Expect(flushed).To(BeFalse())
			Expect(needsMore).To(BeTrue())

			// Still on the old 60Hz cadence.
			flushed, needsMore = reactor.AddHwVsyncTimestamp(period, nil)
			Expect(flushed).To(BeFalse())
			Expect(needsMore).To(BeTrue())
		})

		It("should flush once the sample spacing matches the target", func() {
			reactor.AddHwVsyncTimestamp(0, nil)

			flushed, _ := reactor.AddHwVsyncTimestamp(target, nil)
			Expect(flushed).To(BeTrue())

			// The transition is done; the next sample is ordinary.
			flushed, _ = reactor.AddHwVsyncTimestamp(2*target, nil)
			Expect(flushed).To(BeFalse())
		})

		It("should flush immediately on a composer-reported target period", func() {
			hwcPeriod := target
			flushed, _ := reactor.AddHwVsyncTimestamp(0, &hwcPeriod)
			Expect(flushed).To(BeTrue())
		})
	})

	Describe("Present fences", func() {
		It("should release hardware vsync for a fence on a predicted vsync", func() {
			Expect(reactor.AddPresentFence(vsync.NewSignaledFence(2 * period))).To(BeFalse())
		})

		It("should keep hardware vsync for a fence landing mid-period", func() {
			Expect(reactor.AddPresentFence(vsync.NewSignaledFence(2*period + period/2))).To(BeTrue())
		})

		It("should hold judgment on pending fences until they signal", func() {
			fence := vsync.NewFence()
			Expect(reactor.AddPresentFence(fence)).To(BeTrue())

			fence.Signal(3 * period)
			Expect(reactor.AddPresentFence(vsync.NewSignaledFence(4 * period))).To(BeFalse())
		})

		It("should always want hardware vsync while fences are ignored", func() {
			reactor.SetIgnorePresentFences(true)

			Expect(reactor.AddPresentFence(vsync.NewSignaledFence(2 * period))).To(BeTrue())

			reactor.SetIgnorePresentFences(false)
			Expect(reactor.AddPresentFence(vsync.NewSignaledFence(3 * period))).To(BeFalse())
		})

		It("should bound the pending fence queue", func() {
			for i := 0; i < 40; i++ {
				reactor.AddPresentFence(vsync.NewFence())
			}

			Expect(reactor.Dump()).To(ContainSubstring("20 pending fences"))
		})
	})
})
