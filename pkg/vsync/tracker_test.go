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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/heliowm/helio-core/pkg/constants"
	"github.com/heliowm/helio-core/pkg/display"
	"github.com/heliowm/helio-core/pkg/vsync"
)

const ms = int64(time.Millisecond)

var _ = Describe("Predictor", func() {
	var tracker *vsync.Predictor

	BeforeEach(func() {
		tracker = vsync.NewPredictor(constants.IdealVsyncPeriod)
	})

	Describe("Convergence", func() {
		It("should fit the period from noisy 60Hz samples", func() {
			for _, ts := range []int64{0, 166 * ms / 10, 333 * ms / 10, 499 * ms / 10, 665 * ms / 10, 832 * ms / 10} {
				Expect(tracker.AddVsyncTimestamp(ts)).To(BeTrue())
			}

			period := tracker.CurrentPeriod()
			Expect(period).To(BeNumerically(">=", 166*ms/10))
			Expect(period).To(BeNumerically("<=", 168*ms/10))

			next := tracker.NextAnticipatedVSyncTimeFrom(99 * ms)
			Expect(next).To(BeNumerically(">=", 998*ms/10))
			Expect(next).To(BeNumerically("<=", 1002*ms/10))
		})

		It("should land within 1% of the true period after six samples", func() {
			const truePeriod = int64(8333333) // 120Hz
			for i := int64(0); i < 10; i++ {
				tracker.AddVsyncTimestamp(i * truePeriod)
			}

			period := tracker.CurrentPeriod()
			Expect(period).To(BeNumerically("~", truePeriod, truePeriod/100))
		})

		It("should fall back to the ideal period with few samples", func() {
			tracker.AddVsyncTimestamp(0)
			tracker.AddVsyncTimestamp(16 * ms)

			Expect(tracker.CurrentPeriod()).To(Equal(constants.IdealVsyncPeriod))
			Expect(tracker.NeedsMoreSamples()).To(BeTrue())
		})

		It("should survive an outlier sample", func() {
			const period = int64(16666667)
			for i := int64(0); i < 7; i++ {
				tracker.AddVsyncTimestamp(i * period)
			}
			// One sample a third of a period late.
			tracker.AddVsyncTimestamp(7*period + period/3)
			for i := int64(8); i < 12; i++ {
				tracker.AddVsyncTimestamp(i * period)
			}

			Expect(tracker.CurrentPeriod()).To(BeNumerically("~", period, period/100))
		})
	})

	Describe("Sample validation", func() {
		It("should reject duplicate and backward timestamps", func() {
			Expect(tracker.AddVsyncTimestamp(100 * ms)).To(BeTrue())
			Expect(tracker.AddVsyncTimestamp(100 * ms)).To(BeFalse())
			Expect(tracker.AddVsyncTimestamp(90 * ms)).To(BeFalse())
			Expect(tracker.AddVsyncTimestamp(120 * ms)).To(BeTrue())
		})
	})

	Describe("Prediction without a model", func() {
		It("should anchor the ideal grid at the freshest sample", func() {
			tracker.AddVsyncTimestamp(50 * ms)

			next := tracker.NextAnticipatedVSyncTimeFrom(60 * ms)
			Expect(next).To(Equal(50*ms + constants.IdealVsyncPeriod))
		})

		It("should return now-aligned predictions with no samples at all", func() {
			next := tracker.NextAnticipatedVSyncTimeFrom(42 * ms)
			Expect(next).To(Equal(42 * ms))
		})
	})

	Describe("IsVSyncInPhase", func() {
		BeforeEach(func() {
			const period = int64(8333333) // 120Hz
			for i := int64(0); i < 10; i++ {
				tracker.AddVsyncTimestamp(i * period)
			}
		})

		It("should accept every vsync for a full-rate override", func() {
			Expect(tracker.IsVSyncInPhase(3*8333333, display.Fps(120))).To(BeTrue())
			Expect(tracker.IsVSyncInPhase(4*8333333, display.Fps(120))).To(BeTrue())
		})

		It("should pick every other vsync for a half-rate override", func() {
			Expect(tracker.IsVSyncInPhase(2*8333333, display.Fps(60))).To(BeTrue())
			Expect(tracker.IsVSyncInPhase(3*8333333, display.Fps(60))).To(BeFalse())
			Expect(tracker.IsVSyncInPhase(4*8333333, display.Fps(60))).To(BeTrue())
		})

		It("should treat an override above the display rate as unthrottled", func() {
			Expect(tracker.IsVSyncInPhase(3*8333333, display.Fps(240))).To(BeTrue())
		})
	})

	Describe("ResetModel", func() {
		It("should forget the fit and fall back to the ideal period", func() {
			const period = int64(8333333)
			for i := int64(0); i < 10; i++ {
				tracker.AddVsyncTimestamp(i * period)
			}
			Expect(tracker.CurrentPeriod()).To(BeNumerically("~", period, period/100))

			tracker.ResetModel()

			Expect(tracker.CurrentPeriod()).To(Equal(constants.IdealVsyncPeriod))
			Expect(tracker.NeedsMoreSamples()).To(BeTrue())
		})
	})
})
