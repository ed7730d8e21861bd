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

package policy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/heliowm/helio-core/pkg/display"
	"github.com/heliowm/helio-core/pkg/layerhistory"
	"github.com/heliowm/helio-core/pkg/policy"
)

func threeModeConfigs() *policy.SimpleConfigs {
	configs, err := policy.NewSimpleConfigs([]display.RefreshRate{
		display.NewRefreshRate(0, 60),
		display.NewRefreshRate(1, 90),
		display.NewRefreshRate(2, 120),
	}, true)
	Expect(err).NotTo(HaveOccurred())

	return configs
}

var _ = Describe("SimpleConfigs", func() {
	var configs *policy.SimpleConfigs

	BeforeEach(func() {
		configs = threeModeConfigs()
	})

	It("should refuse an empty mode set", func() {
		_, err := policy.NewSimpleConfigs(nil, false)
		Expect(err).To(HaveOccurred())
	})

	It("should expose the policy extremes", func() {
		Expect(configs.GetMinRefreshRateByPolicy().Fps).To(Equal(display.Fps(60)))
		Expect(configs.GetMaxRefreshRateByPolicy().Fps).To(Equal(display.Fps(120)))
		Expect(configs.CanSwitch()).To(BeTrue())
	})

	It("should track the current mode and reject unknown ones", func() {
		Expect(configs.SetCurrentModeID(2)).To(Succeed())
		Expect(configs.GetCurrentRefreshRate().Fps).To(Equal(display.Fps(120)))

		Expect(configs.SetCurrentModeID(9)).To(MatchError(policy.ErrUnknownMode))
	})

	Describe("GetBestRefreshRate", func() {
		It("should boost to the maximum on touch", func() {
			rate, considered := configs.GetBestRefreshRate(nil, policy.GlobalSignals{Touch: true})
			Expect(rate.Fps).To(Equal(display.Fps(120)))
			Expect(considered.Touch).To(BeTrue())
		})

		It("should drop to the minimum when idle with no content", func() {
			rate, considered := configs.GetBestRefreshRate(nil, policy.GlobalSignals{Idle: true})
			Expect(rate.Fps).To(Equal(display.Fps(60)))
			Expect(considered.Idle).To(BeTrue())
		})

		It("should pick the slowest mode covering the content demand", func() {
			summary := layerhistory.Summary{
				{Name: "video", Vote: layerhistory.Heuristic, DesiredRefreshRate: 72},
			}

			rate, considered := configs.GetBestRefreshRate(summary, policy.GlobalSignals{})
			Expect(rate.Fps).To(Equal(display.Fps(90)))
			Expect(considered.Idle).To(BeFalse())
		})

		It("should let content demand beat the idle signal", func() {
			summary := layerhistory.Summary{
				{Name: "game", Vote: layerhistory.Heuristic, DesiredRefreshRate: 120},
			}

			rate, _ := configs.GetBestRefreshRate(summary, policy.GlobalSignals{Idle: true})
			Expect(rate.Fps).To(Equal(display.Fps(120)))
		})

		It("should pin min-vote content to the slowest mode", func() {
			summary := layerhistory.Summary{
				{Name: "wallpaper", Vote: layerhistory.Min},
			}

			rate, _ := configs.GetBestRefreshRate(summary, policy.GlobalSignals{})
			Expect(rate.Fps).To(Equal(display.Fps(60)))
		})

		It("should keep the current mode when nothing demands a change", func() {
			Expect(configs.SetCurrentModeID(1)).To(Succeed())

			rate, considered := configs.GetBestRefreshRate(nil, policy.GlobalSignals{})
			Expect(rate.ModeID).To(Equal(display.ModeID(1)))
			Expect(considered).To(Equal(policy.GlobalSignals{}))
		})
	})

	Describe("GetFrameRateDivider", func() {
		It("should compute sub-harmonic dividers", func() {
			Expect(policy.GetFrameRateDivider(120, 30)).To(Equal(4))
			Expect(policy.GetFrameRateDivider(120, 60)).To(Equal(2))
			Expect(policy.GetFrameRateDivider(60, 60)).To(Equal(1))
		})

		It("should return zero for invalid rates", func() {
			Expect(policy.GetFrameRateDivider(0, 30)).To(BeZero())
			Expect(policy.GetFrameRateDivider(120, 0)).To(BeZero())
		})
	})

	Describe("GetFrameRateOverrides", func() {
		It("should derive one override per uid from heuristic votes", func() {
			summary := layerhistory.Summary{
				{Name: "a", UID: 42, Vote: layerhistory.Heuristic, DesiredRefreshRate: 30},
				{Name: "b", UID: 42, Vote: layerhistory.Heuristic, DesiredRefreshRate: 60},
				{Name: "c", UID: 7, Vote: layerhistory.Heuristic, DesiredRefreshRate: 120},
			}

			overrides := configs.GetFrameRateOverrides(summary, 120, false)
			Expect(overrides).To(HaveKeyWithValue(uint32(42), display.Fps(60)))
			// Full-rate content is not worth throttling.
			Expect(overrides).NotTo(HaveKey(uint32(7)))
		})

		It("should suspend content overrides during touch", func() {
			summary := layerhistory.Summary{
				{Name: "a", UID: 42, Vote: layerhistory.Heuristic, DesiredRefreshRate: 30},
			}

			Expect(configs.GetFrameRateOverrides(summary, 120, true)).To(BeEmpty())
		})
	})
})
