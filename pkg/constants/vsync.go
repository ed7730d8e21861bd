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

package constants

import "time"

const (
	// IdealRefreshRate seeds the vsync model before any hardware samples
	// have arrived. 60 Hz is what virtually every panel boots into.
	IdealRefreshRate = 60.0

	// IdealVsyncPeriod is 1/IdealRefreshRate in nanoseconds.
	IdealVsyncPeriod = int64(time.Second) / 60

	// VsyncTimestampHistorySize bounds the ring buffer of hardware vsync
	// timestamps kept for the period/phase fit.
	VsyncTimestampHistorySize = 20

	// MinimumSamplesForPrediction is how many samples must survive outlier
	// rejection before the fit replaces the ideal-period fallback.
	MinimumSamplesForPrediction = 6

	// DiscardOutlierPercent is the share of samples, by residual magnitude,
	// thrown away before each fit.
	DiscardOutlierPercent = 20

	// VsyncMoveThreshold: a caller already within this distance of its
	// promised vsync is not re-aimed to a later one.
	VsyncMoveThreshold = 3 * time.Millisecond

	// TimerSlack is the tolerated wakeup lateness of the dispatch thread.
	TimerSlack = 500 * time.Microsecond

	// PendingFenceLimit bounds the queue of unsignaled present fences held
	// by the reactor. Excess fences are dropped oldest-first.
	PendingFenceLimit = 20

	// MaxVsyncAppliedLookahead clamps the applied-time reported in a vsync
	// period change timeline. Some composers report times far in the
	// future; everything beyond this bound is treated as "now + bound".
	MaxVsyncAppliedLookahead = time.Second
)
