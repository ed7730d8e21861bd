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

import "github.com/heliowm/helio-core/pkg/display"

// Callback is the host surface the scheduler drives. No scheduler lock is
// ever held across these calls.
type Callback interface {
	// SetVsyncEnabled turns hardware vsync interrupts on or off.
	SetVsyncEnabled(enabled bool)
	// ChangeRefreshRate switches the display to the chosen mode.
	ChangeRefreshRate(rate display.RefreshRate, event display.ModeEvent)
	// RepaintEverythingForHWC forces a full composition pass.
	RepaintEverythingForHWC()
	// KernelTimerChanged reports kernel idle timer expiry flips.
	KernelTimerChanged(expired bool)
	// TriggerOnFrameRateOverridesChanged tells the host the per-uid
	// override set changed.
	TriggerOnFrameRateOverridesChanged()
	// GetModeFromFps resolves the display mode closest to a thermal cap.
	GetModeFromFps(fps display.Fps) (display.RefreshRate, error)
}
