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
	"github.com/heliowm/helio-core/pkg/display"
	"github.com/heliowm/helio-core/pkg/layerhistory"
)

// TimerState is the two-valued state of an inactivity timer.
type TimerState int

const (
	TimerReset TimerState = iota
	TimerExpired
)

// String formats the state for traces and dumps.
func (s TimerState) String() string {
	if s == TimerExpired {
		return "Expired"
	}

	return "Reset"
}

// TouchState tracks recent touch interaction.
type TouchState int

const (
	TouchInactive TouchState = iota
	TouchActive
)

// String formats the state for traces and dumps.
func (s TouchState) String() string {
	if s == TouchActive {
		return "Active"
	}

	return "Inactive"
}

// cachedModeParams are the last mode-change parameters dispatched outward,
// kept to suppress redundant notifications and to replay a change that an
// idle period swallowed.
type cachedModeParams struct {
	Handle      ConnectionHandle
	ModeID      display.ModeID
	VsyncPeriod int64
}

// Features is the decision state of mode selection. The whole record sits
// behind one mutex; the pipeline depends on consistent snapshots of
// several fields at once.
type Features struct {
	HasModeID bool
	ModeID    display.ModeID

	ContentRequirements layerhistory.Summary

	IdleTimer         TimerState
	Touch             TouchState
	DisplayPowerTimer TimerState

	IsDisplayPowerStateNormal bool

	CachedModeChangedParams *cachedModeParams
}
