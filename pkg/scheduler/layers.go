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
	"github.com/heliowm/helio-core/pkg/layerhistory"
)

// RegisterLayer adds a layer to history with a vote type derived from its
// window class. Layers are registered even with content detection off;
// other consumers (frame rate overrides) still need the records.
func (s *Scheduler) RegisterLayer(layer layerhistory.Layer) {
	var vote layerhistory.LayerVoteType

	switch {
	case !s.options.UseContentDetection || layer.WindowType() == layerhistory.WindowTypeStatusBar:
		vote = layerhistory.NoVote
	case layer.WindowType() == layerhistory.WindowTypeWallpaper:
		// Running the wallpaper at min counts as content detection.
		vote = layerhistory.Min
	default:
		vote = layerhistory.Heuristic
	}

	s.history.RegisterLayer(layer, vote)
}

// DeregisterLayer removes a layer from history.
func (s *Scheduler) DeregisterLayer(layer layerhistory.Layer) {
	s.history.DeregisterLayer(layer)
}

// RecordLayerHistory notes one layer update; pointless on single-mode
// displays.
func (s *Scheduler) RecordLayerHistory(layer layerhistory.Layer, presentTime int64, updateType layerhistory.LayerUpdateType) {
	if s.configs.CanSwitch() {
		s.history.Record(layer, presentTime, s.schedule.Clock.Now(), updateType)
	}
}

// SetModeChangePending forwards the mode-change-pending flag to layer
// history.
func (s *Scheduler) SetModeChangePending(pending bool) {
	s.history.SetModeChangePending(pending)
}

// OnPrimaryDisplayAreaChanged forwards the display area to history.
func (s *Scheduler) OnPrimaryDisplayAreaChanged(area uint32) {
	s.history.SetDisplayArea(area)
}
