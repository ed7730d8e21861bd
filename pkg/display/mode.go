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

// Package display holds the data model shared between the scheduler, the
// vsync subsystem and the refresh-rate policy: rates, modes, overrides and
// the mode-change event vocabulary.
package display

import "fmt"

// ModeID identifies one refresh mode of the physical display. IDs are
// totally ordered so that policy tie-breaks are stable.
type ModeID int32

// InvalidModeID is the zero value returned for unknown modes.
const InvalidModeID ModeID = -1

// RefreshRate is one selectable mode of the display: its id, rate and
// derived vsync period. The set of available modes is fixed per display
// and supplied by the host.
type RefreshRate struct {
	ModeID      ModeID
	Fps         Fps
	VsyncPeriod int64
}

// NewRefreshRate builds a RefreshRate with the period derived from fps.
func NewRefreshRate(id ModeID, fps Fps) RefreshRate {
	return RefreshRate{ModeID: id, Fps: fps, VsyncPeriod: fps.Period()}
}

// String formats the mode for logs and dumps.
func (r RefreshRate) String() string {
	return fmt.Sprintf("mode %d (%s)", r.ModeID, r.Fps)
}

// ModeEvent tells the host whether a mode change should be surfaced to
// clients or applied silently.
type ModeEvent int

const (
	// ModeEventNone applies the mode without notifying clients. Used when
	// the change was caused by idleness, which clients should not observe.
	ModeEventNone ModeEvent = iota
	// ModeEventChanged applies the mode and notifies clients.
	ModeEventChanged
)

// String formats the event kind.
func (e ModeEvent) String() string {
	if e == ModeEventChanged {
		return "Changed"
	}

	return "None"
}

// FrameRateOverride instructs the scheduler to deliver vsync to one
// application at a reduced sub-harmonic of the display rate.
type FrameRateOverride struct {
	UID uint32
	Fps Fps
}

// VsyncPeriodChangeTimeline is the host-supplied schedule on which a period
// change becomes visible on screen.
type VsyncPeriodChangeTimeline struct {
	RefreshRequired bool
	// RefreshTime is when a frame must be presented for the change to take.
	RefreshTime int64
	// AppliedTime is when the new period is in effect; clamped to a bounded
	// lookahead by the scheduler.
	AppliedTime int64
}

// StatInfo is the (next vsync, period) pair clients use to phase their work.
type StatInfo struct {
	VsyncTime   int64
	VsyncPeriod int64
}
