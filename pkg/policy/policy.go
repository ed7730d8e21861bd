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

// Package policy maps content requirements and global signals to a display
// mode. The scheduler depends only on the Configs interface; SimpleConfigs
// is the reference implementation.
package policy

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/heliowm/helio-core/pkg/display"
	"github.com/heliowm/helio-core/pkg/layerhistory"
)

// ErrUnknownMode is returned for mode ids outside the display's mode set.
var ErrUnknownMode = errors.New("unknown display mode")

// GlobalSignals are the interaction inputs to mode selection. The policy
// returns the subset it actually based its decision on.
type GlobalSignals struct {
	Touch bool
	Idle  bool
}

// Configs is the refresh-rate policy surface the scheduler consumes.
type Configs interface {
	// GetCurrentRefreshRate returns the mode the display is running at.
	GetCurrentRefreshRate() display.RefreshRate
	// SetCurrentModeID records the mode the host switched the display to.
	SetCurrentModeID(id display.ModeID) error
	// GetRefreshRateFromModeID resolves a mode id.
	GetRefreshRateFromModeID(id display.ModeID) (display.RefreshRate, error)
	// GetMaxRefreshRateByPolicy returns the fastest allowed mode.
	GetMaxRefreshRateByPolicy() display.RefreshRate
	// GetMinRefreshRateByPolicy returns the slowest allowed mode.
	GetMinRefreshRateByPolicy() display.RefreshRate
	// GetBestRefreshRate picks a mode for the content summary and signals,
	// and reports which signals the decision was based on.
	GetBestRefreshRate(summary layerhistory.Summary, signals GlobalSignals) (display.RefreshRate, GlobalSignals)
	// GetFrameRateOverrides derives per-uid frame rate overrides from the
	// content summary.
	GetFrameRateOverrides(summary layerhistory.Summary, displayFps display.Fps, touch bool) map[uint32]display.Fps
	// SupportsFrameRateOverride reports whether per-uid throttling is on.
	SupportsFrameRateOverride() bool
	// CanSwitch reports whether the display has more than one mode.
	CanSwitch() bool
}

// GetFrameRateDivider returns the sub-harmonic divider for delivering
// targetFps on a displayFps display. A target above the display rate gives
// 1, or 0 once it exceeds twice the display rate; callers treat both as no
// throttling.
func GetFrameRateDivider(displayFps, targetFps display.Fps) int {
	if !displayFps.IsValid() || !targetFps.IsValid() {
		return 0
	}

	return int(math.Round(float64(displayFps) / float64(targetFps)))
}

// SimpleConfigs is a small content-first policy: touch boosts to the
// maximum rate, content picks the slowest mode that covers the highest
// desired rate, idleness falls back to the minimum. Ties between
// equally-suited modes go to the lowest mode id.
type SimpleConfigs struct {
	mu sync.Mutex

	// modes sorted by fps ascending, mode id as tie-break.
	modes   []display.RefreshRate
	current display.ModeID

	supportsOverrides bool
}

// NewSimpleConfigs builds a policy over the display's fixed mode set.
// The initial current mode is the first supplied mode.
func NewSimpleConfigs(modes []display.RefreshRate, supportsOverrides bool) (*SimpleConfigs, error) {
	if len(modes) == 0 {
		return nil, errors.New("policy needs at least one display mode")
	}

	sorted := make([]display.RefreshRate, len(modes))
	copy(sorted, modes)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Fps.EqualsWithMargin(sorted[j].Fps) {
			return sorted[i].ModeID < sorted[j].ModeID
		}

		return sorted[i].Fps < sorted[j].Fps
	})

	return &SimpleConfigs{
		modes:             sorted,
		current:           modes[0].ModeID,
		supportsOverrides: supportsOverrides,
	}, nil
}

// GetCurrentRefreshRate returns the mode the display is running at.
func (c *SimpleConfigs) GetCurrentRefreshRate() display.RefreshRate {
	c.mu.Lock()
	defer c.mu.Unlock()

	rr, _ := c.lookupLocked(c.current)

	return rr
}

// SetCurrentModeID records the mode the host switched the display to.
func (c *SimpleConfigs) SetCurrentModeID(id display.ModeID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.lookupLocked(id); err != nil {
		return err
	}

	c.current = id

	return nil
}

// GetRefreshRateFromModeID resolves a mode id.
func (c *SimpleConfigs) GetRefreshRateFromModeID(id display.ModeID) (display.RefreshRate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lookupLocked(id)
}

func (c *SimpleConfigs) lookupLocked(id display.ModeID) (display.RefreshRate, error) {
	for _, rr := range c.modes {
		if rr.ModeID == id {
			return rr, nil
		}
	}

	return display.RefreshRate{ModeID: display.InvalidModeID}, fmt.Errorf("%w: %d", ErrUnknownMode, id)
}

// GetMaxRefreshRateByPolicy returns the fastest allowed mode.
func (c *SimpleConfigs) GetMaxRefreshRateByPolicy() display.RefreshRate {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.modes[len(c.modes)-1]
}

// GetMinRefreshRateByPolicy returns the slowest allowed mode.
func (c *SimpleConfigs) GetMinRefreshRateByPolicy() display.RefreshRate {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.modes[0]
}

// GetBestRefreshRate picks a mode for the content summary and signals.
func (c *SimpleConfigs) GetBestRefreshRate(summary layerhistory.Summary, signals GlobalSignals) (display.RefreshRate, GlobalSignals) {
	c.mu.Lock()
	defer c.mu.Unlock()

	considered := GlobalSignals{}

	if signals.Touch {
		considered.Touch = true

		return c.modes[len(c.modes)-1], considered
	}

	var maxDesired display.Fps
	hasHeuristic := false
	hasMin := false
	for _, req := range summary {
		switch req.Vote {
		case layerhistory.Min:
			hasMin = true
		case layerhistory.Heuristic:
			hasHeuristic = true
			if req.DesiredRefreshRate > maxDesired {
				maxDesired = req.DesiredRefreshRate
			}
		}
	}

	if hasHeuristic {
		// Slowest mode that still covers the demand; modes is sorted so the
		// first hit is also the lowest mode id among margin-equal rates.
		for _, rr := range c.modes {
			if !rr.Fps.GreaterThanWithMargin(maxDesired) && !rr.Fps.EqualsWithMargin(maxDesired) {
				continue
			}

			return rr, considered
		}

		return c.modes[len(c.modes)-1], considered
	}

	if signals.Idle {
		considered.Idle = true

		return c.modes[0], considered
	}

	if hasMin {
		return c.modes[0], considered
	}

	// Nothing demands a change.
	rr, _ := c.lookupLocked(c.current)

	return rr, considered
}

// GetFrameRateOverrides derives per-uid overrides from content votes. A
// touch boost suspends content-derived throttling entirely.
func (c *SimpleConfigs) GetFrameRateOverrides(summary layerhistory.Summary, displayFps display.Fps, touch bool) map[uint32]display.Fps {
	overrides := make(map[uint32]display.Fps)
	if touch {
		return overrides
	}

	// The fastest layer of each uid wins.
	for _, req := range summary {
		if req.Vote != layerhistory.Heuristic || !req.DesiredRefreshRate.IsValid() {
			continue
		}
		if cur, ok := overrides[req.UID]; !ok || req.DesiredRefreshRate > cur {
			overrides[req.UID] = req.DesiredRefreshRate
		}
	}

	// Only rates that map onto a sub-harmonic of the display are worth
	// throttling to.
	for uid, fps := range overrides {
		if GetFrameRateDivider(displayFps, fps) < 2 {
			delete(overrides, uid)
		}
	}

	return overrides
}

// SupportsFrameRateOverride reports whether per-uid throttling is on.
func (c *SimpleConfigs) SupportsFrameRateOverride() bool {
	return c.supportsOverrides
}

// CanSwitch reports whether the display has more than one mode.
func (c *SimpleConfigs) CanSwitch() bool {
	return len(c.modes) > 1
}
