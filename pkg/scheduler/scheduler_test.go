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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/heliowm/helio-core/pkg/clock"
	"github.com/heliowm/helio-core/pkg/display"
	"github.com/heliowm/helio-core/pkg/eventthread"
	"github.com/heliowm/helio-core/pkg/layerhistory"
	"github.com/heliowm/helio-core/pkg/policy"
	"github.com/heliowm/helio-core/pkg/timer"
)

const ms = int64(time.Millisecond)

var _ = Describe("Scheduler", func() {
	var (
		clk      *clock.ManualClock
		configs  *policy.SimpleConfigs
		history  *fakeHistory
		callback *mockCallback
		s        *Scheduler
	)

	modes := []display.RefreshRate{
		display.NewRefreshRate(0, 60),
		display.NewRefreshRate(1, 90),
		display.NewRefreshRate(2, 120),
	}

	BeforeEach(func() {
		var err error
		clk = clock.NewManualClock(0)
		configs, err = policy.NewSimpleConfigs(modes, true)
		Expect(err).NotTo(HaveOccurred())
		history = &fakeHistory{}
		callback = &mockCallback{modes: modes}

		s = New(clk, configs, history, callback, Options{UseContentDetection: true})

		// Unstarted timers make the timer-dependent selection branches
		// reachable without racing real timer goroutines.
		s.idleTimer = timer.New("IdleTimer", time.Hour, nil, nil)
		s.touchTimer = timer.New("TouchTimer", time.Hour, nil, nil)

		callback.resetRecording()
	})

	AfterEach(func() {
		s.Stop()
	})

	Describe("Construction", func() {
		It("should disable hardware vsync on startup", func() {
			recorder := &mockCallback{modes: modes}
			fresh := New(clk, configs, history, recorder, Options{})
			defer fresh.Stop()

			Expect(recorder.vsyncCalls()).To(Equal([]bool{false}))
		})
	})

	Describe("Idle and touch driven mode selection", func() {
		BeforeEach(func() {
			Expect(configs.SetCurrentModeID(2)).To(Succeed())
		})

		It("should drop to the minimum mode on idle expiry without client events", func() {
			s.idleTimerCallback(TimerExpired)

			changes := callback.changes()
			Expect(changes).To(HaveLen(1))
			Expect(changes[0].rate.Fps).To(Equal(display.Fps(60)))
			Expect(changes[0].event).To(Equal(display.ModeEventNone))
		})

		It("should boost back to the maximum on touch and reset rate detection", func() {
			s.idleTimerCallback(TimerExpired)
			s.touchTimerCallback(TimerReset)

			changes := callback.changes()
			Expect(changes).To(HaveLen(2))
			Expect(changes[1].rate.Fps).To(Equal(display.Fps(120)))
			Expect(changes[1].event).To(Equal(display.ModeEventChanged))
			Expect(history.clearCount()).To(Equal(1))
		})

		It("should swallow a repeated timer state", func() {
			s.idleTimerCallback(TimerExpired)
			s.idleTimerCallback(TimerExpired)

			Expect(callback.changes()).To(HaveLen(1))
		})
	})

	Describe("Content driven mode selection", func() {
		It("should follow the content demand", func() {
			history.setSummary(layerhistory.Summary{
				{Name: "video", UID: 10, Vote: layerhistory.Heuristic, DesiredRefreshRate: 72},
			})

			s.ChooseRefreshRateForContent()

			changes := callback.changes()
			Expect(changes).To(HaveLen(1))
			Expect(changes[0].rate.Fps).To(Equal(display.Fps(90)))
			Expect(changes[0].event).To(Equal(display.ModeEventChanged))
		})

		It("should emit at most one change for identical back-to-back inputs", func() {
			history.setSummary(layerhistory.Summary{
				{Name: "video", UID: 10, Vote: layerhistory.Heuristic, DesiredRefreshRate: 72},
			})

			s.ChooseRefreshRateForContent()
			s.ChooseRefreshRateForContent()

			Expect(callback.changes()).To(HaveLen(1))
		})
	})

	Describe("Thermal clamp", func() {
		It("should clamp the chosen mode to the thermal cap", func() {
			s.UpdateThermalFps(90)
			history.setSummary(layerhistory.Summary{
				{Name: "game", UID: 10, Vote: layerhistory.Heuristic, DesiredRefreshRate: 120},
			})

			s.ChooseRefreshRateForContent()

			changes := callback.changes()
			Expect(changes).To(HaveLen(1))
			Expect(changes[0].rate.Fps).To(Equal(display.Fps(90)))
			Expect(changes[0].event).To(Equal(display.ModeEventChanged))
		})

		It("should forward the cap to layer history", func() {
			s.UpdateThermalFps(90)

			Expect(history.thermal).To(Equal(display.Fps(90)))
		})
	})

	Describe("Display power precedence", func() {
		BeforeEach(func() {
			s.displayPowerTimer = timer.New("DisplayPowerTimer", time.Hour, nil, nil)
		})

		It("should run at performance while display power is abnormal", func() {
			s.SetDisplayPowerState(false)
			s.displayPowerTimerCallback(TimerExpired)

			changes := callback.changes()
			Expect(changes).To(HaveLen(1))
			Expect(changes[0].rate.Fps).To(Equal(display.Fps(120)))
		})
	})

	Describe("Frame rate override arbitration", func() {
		It("should shadow content overrides with the backdoor", func() {
			s.overridesMu.Lock()
			s.overridesByContent[42] = 45
			s.overridesMu.Unlock()

			s.SetPreferredRefreshRateForUid(display.FrameRateOverride{UID: 42, Fps: 30})

			fps, ok := s.GetFrameRateOverride(42)
			Expect(ok).To(BeTrue())
			Expect(fps).To(Equal(display.Fps(30)))

			// Zero erases the backdoor entry; the content value resurfaces.
			s.SetPreferredRefreshRateForUid(display.FrameRateOverride{UID: 42, Fps: 0})

			fps, ok = s.GetFrameRateOverride(42)
			Expect(ok).To(BeTrue())
			Expect(fps).To(Equal(display.Fps(45)))
		})

		It("should drop overrides in the open interval (0, 1)", func() {
			s.SetPreferredRefreshRateForUid(display.FrameRateOverride{UID: 7, Fps: 0.5})

			_, ok := s.GetFrameRateOverride(7)
			Expect(ok).To(BeFalse())
		})

		It("should publish override changes exactly once per change", func() {
			history.setSummary(layerhistory.Summary{
				{Name: "video", UID: 42, Vote: layerhistory.Heuristic, DesiredRefreshRate: 30},
			})

			s.ChooseRefreshRateForContent()
			Expect(callback.overridePublishCount()).To(Equal(1))

			s.ChooseRefreshRateForContent()
			Expect(callback.overridePublishCount()).To(Equal(1))
		})

		It("should throttle vsyncs off the override sub-harmonic", func() {
			const period = int64(8333333) // 120Hz model
			for i := int64(0); i < 10; i++ {
				s.schedule.Tracker.AddVsyncTimestamp(i * period)
			}
			Expect(configs.SetCurrentModeID(2)).To(Succeed())
			s.SetPreferredRefreshRateForUid(display.FrameRateOverride{UID: 42, Fps: 60})

			throttle := s.makeThrottleVsyncCallback()
			Expect(throttle).NotTo(BeNil())
			Expect(throttle(2*period, 42)).To(BeFalse())
			Expect(throttle(3*period, 42)).To(BeTrue())
			Expect(throttle(3*period, 7)).To(BeFalse())

			getPeriod := s.makeGetVsyncPeriodFunction()
			Expect(getPeriod(42)).To(Equal(2 * display.Fps(120).Period()))
			Expect(getPeriod(7)).To(Equal(display.Fps(120).Period()))
		})
	})

	Describe("Resync throttling", func() {
		It("should forward at most one resync per throttle window", func() {
			s.resync()
			Expect(s.lastResyncTime.Load()).To(Equal(int64(0)))

			clk.SetNow(700 * ms)
			s.resync()
			Expect(s.lastResyncTime.Load()).To(Equal(int64(0)))

			clk.SetNow(800 * ms)
			s.resync()
			Expect(s.lastResyncTime.Load()).To(Equal(800 * ms))
		})
	})

	Describe("Hardware vsync control", func() {
		It("should gate enabling on availability", func() {
			s.EnableHardwareVsync()
			Expect(callback.vsyncCalls()).To(BeEmpty())

			s.ResyncToHardwareVsync(true, 16666667, false)
			Expect(callback.vsyncCalls()).To(Equal([]bool{true}))

			// Already enabled: no extra host call.
			s.EnableHardwareVsync()
			Expect(callback.vsyncCalls()).To(Equal([]bool{true}))
		})

		It("should stay off after a hard disable until made available again", func() {
			s.ResyncToHardwareVsync(true, 16666667, false)
			callback.resetRecording()

			s.DisableHardwareVsync(true)
			Expect(callback.vsyncCalls()).To(Equal([]bool{false}))

			s.EnableHardwareVsync()
			s.ResyncToHardwareVsync(false, 16666667, false)
			Expect(callback.vsyncCalls()).To(Equal([]bool{false}))

			s.ResyncToHardwareVsync(true, 16666667, false)
			Expect(callback.vsyncCalls()).To(Equal([]bool{false, true}))
		})

		It("should ignore non-positive periods", func() {
			s.ResyncToHardwareVsync(true, 0, false)
			s.ResyncToHardwareVsync(true, -5, false)

			Expect(callback.vsyncCalls()).To(BeEmpty())
		})
	})

	Describe("Invalid handles", func() {
		It("should survive operations on unknown handles", func() {
			unknown := ConnectionHandle(999)

			s.OnScreenAcquired(unknown)
			s.OnScreenReleased(unknown)
			s.OnHotplugReceived(unknown, true)
			s.OnFrameRateOverridesChanged(unknown)
			Expect(s.GetEventConnection(unknown)).To(BeNil())
			Expect(s.CreateDisplayEventConnection(unknown, 0, false, nil)).To(BeNil())
			Expect(s.EventThreadConnectionCount(unknown)).To(BeZero())
			Expect(s.DumpConnection(unknown)).To(BeEmpty())
		})
	})

	Describe("Vsync period change timeline", func() {
		It("should clamp the applied time and drive the repaint loop", func() {
			s.OnNewVsyncPeriodChangeTimeline(display.VsyncPeriodChangeTimeline{
				RefreshRequired: true,
				RefreshTime:     10 * ms,
				AppliedTime:     10 * int64(time.Second),
			})
			Expect(callback.repaintCount()).To(Equal(1))

			s.timelineMu.Lock()
			applied := s.lastTimeline.AppliedTime
			s.timelineMu.Unlock()
			Expect(applied).To(Equal(int64(time.Second)))

			// The required refresh is still ahead: keep repainting.
			s.OnDisplayRefreshed(5 * ms)
			Expect(callback.repaintCount()).To(Equal(2))

			// Refresh landed past the required time: the loop ends.
			s.OnDisplayRefreshed(20 * ms)
			s.OnDisplayRefreshed(30 * ms)
			Expect(callback.repaintCount()).To(Equal(2))
		})
	})

	Describe("Cached mode replay", func() {
		It("should replay an idle-suppressed mode change once idleness clears", func() {
			handle := s.CreateConnection("test", nil, 0, 0, nil)
			s.OnHotplugReceived(handle, true)
			s.OnScreenAcquired(handle)

			events := make(chan eventthread.Event, 4)
			Expect(s.CreateDisplayEventConnection(handle, 0, false, func(ev eventthread.Event) {
				events <- ev
			})).NotTo(BeNil())

			// The host last reported the 120Hz mode outward.
			s.OnPrimaryDisplayModeChanged(handle, 2, display.Fps(120).Period())
			var reported eventthread.Event
			Eventually(events, time.Second).Should(Receive(&reported))
			Expect(reported.ModeID).To(Equal(display.ModeID(2)))

			// Idle expiry drops to 60 with the outward event suppressed.
			s.idleTimerCallback(TimerExpired)
			changes := callback.changes()
			Expect(changes).To(HaveLen(1))
			Expect(changes[0].event).To(Equal(display.ModeEventNone))

			// Once idleness clears, the swallowed change is replayed.
			s.idleTimerCallback(TimerReset)
			Eventually(events, time.Second).Should(Receive(&reported))
			Expect(reported.Type).To(Equal(eventthread.EventModeChanged))
			Expect(reported.ModeID).To(Equal(display.ModeID(0)))
		})
	})

	Describe("Stat info", func() {
		It("should report the tracker's prediction and period", func() {
			info := s.GetDisplayStatInfo(0)
			Expect(info.VsyncPeriod).To(Equal(display.Fps(60).Period()))
			Expect(info.VsyncTime).To(BeNumerically(">=", 0))

			Expect(s.GetPreviousVsyncFrom(100 * ms)).To(Equal(100*ms - info.VsyncPeriod))
		})
	})
})
