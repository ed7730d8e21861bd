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

package display_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/heliowm/helio-core/pkg/display"
)

var _ = Describe("Fps", func() {
	It("should treat rates within the margin as equal", func() {
		Expect(display.Fps(60).EqualsWithMargin(display.Fps(60.0005))).To(BeTrue())
		Expect(display.Fps(60).EqualsWithMargin(display.Fps(60.01))).To(BeFalse())
	})

	It("should compare with margin", func() {
		Expect(display.Fps(90).GreaterThanWithMargin(display.Fps(60))).To(BeTrue())
		Expect(display.Fps(60.0005).GreaterThanWithMargin(display.Fps(60))).To(BeFalse())
		Expect(display.Fps(60).LessThanOrEqualWithMargin(display.Fps(60.0005))).To(BeTrue())
		Expect(display.Fps(90).LessThanOrEqualWithMargin(display.Fps(60))).To(BeFalse())
	})

	It("should round-trip rate and period", func() {
		Expect(display.Fps(60).Period()).To(Equal(int64(16666667)))
		Expect(display.FpsFromPeriod(16666667).EqualsWithMargin(display.Fps(60))).To(BeTrue())
	})

	It("should reject zero and negative rates", func() {
		Expect(display.Fps(0).IsValid()).To(BeFalse())
		Expect(display.Fps(-30).IsValid()).To(BeFalse())
		Expect(display.Fps(0).Period()).To(BeZero())
		Expect(display.FpsFromPeriod(0)).To(Equal(display.Fps(0)))
	})

	It("should derive the vsync period for a refresh rate", func() {
		rate := display.NewRefreshRate(1, 120)
		Expect(rate.VsyncPeriod).To(Equal(int64(8333333)))
	})
})
