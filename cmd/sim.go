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

package main

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/heliowm/helio-core/pkg/clock"
	"github.com/heliowm/helio-core/pkg/display"
	"github.com/heliowm/helio-core/pkg/policy"
	"github.com/heliowm/helio-core/pkg/scheduler"
	"github.com/heliowm/helio-core/pkg/vsync"
	"go.uber.org/zap"
)

// simulatedHost stands in for the composer on a dev machine: it answers
// the scheduler's callbacks and, while vsync is enabled, generates
// hardware-like vsync timestamps with a little jitter.
type simulatedHost struct {
	configs policy.Configs
	clk     clock.Clock
	log     *zap.SugaredLogger

	mu    sync.Mutex
	sched *scheduler.Scheduler

	vsyncEnabled atomic.Bool
	periodNs     atomic.Int64

	appHandle atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newSimulatedHost(configs policy.Configs, clk clock.Clock, log *zap.SugaredLogger) *simulatedHost {
	h := &simulatedHost{configs: configs, clk: clk, log: log}
	h.periodNs.Store(configs.GetCurrentRefreshRate().VsyncPeriod)

	return h
}

// bind closes the construction cycle: the scheduler needs the callback at
// New time, the callback needs the scheduler for fan-out.
func (h *simulatedHost) bind(sched *scheduler.Scheduler) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sched = sched
}

func (h *simulatedHost) scheduler() *scheduler.Scheduler {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.sched
}

func (h *simulatedHost) setAppHandle(handle scheduler.ConnectionHandle) {
	h.appHandle.Store(uint64(handle))
}

// SetVsyncEnabled implements scheduler.Callback.
func (h *simulatedHost) SetVsyncEnabled(enabled bool) {
	h.vsyncEnabled.Store(enabled)
	h.log.Debugf("hw vsync %t", enabled)
}

// ChangeRefreshRate implements scheduler.Callback: apply the mode on the
// simulated panel and report the change timeline.
func (h *simulatedHost) ChangeRefreshRate(rate display.RefreshRate, event display.ModeEvent) {
	h.log.Infof("display mode -> %s (%s)", rate, event)

	if err := h.configs.SetCurrentModeID(rate.ModeID); err != nil {
		h.log.Errorf("mode switch rejected: %v", err)

		return
	}

	h.periodNs.Store(rate.VsyncPeriod)

	sched := h.scheduler()
	if sched == nil {
		return
	}

	now := h.clk.Now()
	sched.OnNewVsyncPeriodChangeTimeline(display.VsyncPeriodChangeTimeline{
		RefreshRequired: true,
		RefreshTime:     now,
		AppliedTime:     now + rate.VsyncPeriod,
	})
	sched.ResyncToHardwareVsync(true, rate.VsyncPeriod, false)

	if handle := scheduler.ConnectionHandle(h.appHandle.Load()); handle != scheduler.InvalidHandle {
		sched.OnPrimaryDisplayModeChanged(handle, rate.ModeID, rate.VsyncPeriod)
	}
}

// RepaintEverythingForHWC implements scheduler.Callback.
func (h *simulatedHost) RepaintEverythingForHWC() {
	h.log.Debugf("repaint everything")
}

// KernelTimerChanged implements scheduler.Callback.
func (h *simulatedHost) KernelTimerChanged(expired bool) {
	h.log.Debugf("kernel idle timer expired=%t", expired)
}

// TriggerOnFrameRateOverridesChanged implements scheduler.Callback.
func (h *simulatedHost) TriggerOnFrameRateOverridesChanged() {
	sched := h.scheduler()
	handle := scheduler.ConnectionHandle(h.appHandle.Load())
	if sched == nil || handle == scheduler.InvalidHandle {
		return
	}

	sched.OnFrameRateOverridesChanged(handle)
}

// GetModeFromFps implements scheduler.Callback: the fastest mode at or
// under the cap, or the slowest mode overall.
func (h *simulatedHost) GetModeFromFps(fps display.Fps) (display.RefreshRate, error) {
	best := display.RefreshRate{ModeID: display.InvalidModeID}
	fallback := display.RefreshRate{ModeID: display.InvalidModeID}

	for id := int32(0); id < 64; id++ {
		rate, err := h.configs.GetRefreshRateFromModeID(display.ModeID(id))
		if err != nil {
			continue
		}
		if fallback.ModeID == display.InvalidModeID || rate.Fps < fallback.Fps {
			fallback = rate
		}
		if rate.Fps.LessThanOrEqualWithMargin(fps) &&
			(best.ModeID == display.InvalidModeID || rate.Fps > best.Fps) {
			best = rate
		}
	}

	if best.ModeID != display.InvalidModeID {
		return best, nil
	}
	if fallback.ModeID != display.InvalidModeID {
		return fallback, nil
	}

	return best, errors.New("no display modes")
}

// start runs the vsync generator until stop is called.
func (h *simulatedHost) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel

	h.wg.Add(1)
	go h.generate(ctx)
}

func (h *simulatedHost) stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
}

// generate emits vsync timestamps at the panel period with ±100µs jitter
// and a presentation fence on every frame.
func (h *simulatedHost) generate(ctx context.Context) {
	defer h.wg.Done()

	for {
		period := time.Duration(h.periodNs.Load())

		select {
		case <-ctx.Done():
			return
		case <-time.After(period):
		}

		if !h.vsyncEnabled.Load() {
			continue
		}

		sched := h.scheduler()
		if sched == nil {
			continue
		}

		jitter := int64(rand.Intn(200_000)) - 100_000
		ts := h.clk.Now() + jitter
		sched.AddResyncSample(ts, nil)
		sched.AddPresentFence(vsync.NewSignaledFence(ts))
	}
}
