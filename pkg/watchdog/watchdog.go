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

// Package watchdog detects a stalled vsync pipeline: callbacks that stop
// flowing while clients are still phasing work against them.
package watchdog

import (
	"context"
	"sync"
	"time"

	"github.com/heliowm/helio-core/pkg/constants"
	"github.com/heliowm/helio-core/pkg/logger"
	"github.com/heliowm/helio-core/pkg/metrics"
	"github.com/heliowm/helio-core/pkg/sentry"
	"go.uber.org/zap"
)

// VsyncWatchdog monitors the time since the last dispatched vsync
// callback. When the gap exceeds the starvation threshold it logs, bumps
// the starvation metric and reports a warning.
//
// Hook NoteVsyncDispatched into the app connection's intercept callback.
type VsyncWatchdog struct {
	mu             sync.RWMutex
	lastDispatch   time.Time
	expectedPeriod time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log *zap.SugaredLogger
}

// New creates a watchdog expecting one callback per period and starts its
// check loop. Stop must be called to join it.
func New(expectedPeriod time.Duration) *VsyncWatchdog {
	ctx, cancel := context.WithCancel(context.Background())
	w := &VsyncWatchdog{
		lastDispatch:   time.Now(),
		expectedPeriod: expectedPeriod,
		ctx:            ctx,
		cancel:         cancel,
		log:            logger.For(logger.ComponentWatchdog),
	}

	w.wg.Add(1)
	go w.checkLoop()

	return w
}

// NoteVsyncDispatched marks the current time as the most recent delivered
// vsync callback.
func (w *VsyncWatchdog) NoteVsyncDispatched(int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.lastDispatch = time.Now()
}

// SetExpectedPeriod follows display mode changes.
func (w *VsyncWatchdog) SetExpectedPeriod(period time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.expectedPeriod = period
}

// LastDispatch returns the most recent noted callback time.
func (w *VsyncWatchdog) LastDispatch() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.lastDispatch
}

func (w *VsyncWatchdog) checkLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(constants.WatchdogCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.mu.RLock()
			gap := time.Since(w.lastDispatch)
			threshold := w.expectedPeriod * constants.WatchdogStarvedPeriods
			w.mu.RUnlock()

			if gap > threshold {
				metrics.AddStarvationTime(gap.Seconds())
				sentry.ReportIssuef(sentry.IssueTypeWarning, w.log,
					"vsync starvation: %.2fs since last dispatched callback", gap.Seconds())
			}
		}
	}
}

// Stop joins the check loop.
func (w *VsyncWatchdog) Stop() {
	w.cancel()
	w.wg.Wait()
}
