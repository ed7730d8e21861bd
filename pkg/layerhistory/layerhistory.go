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

// Package layerhistory tracks per-layer presentation activity and
// summarizes it into the content requirements the refresh-rate policy
// consumes. The summary heuristic here is deliberately small; the
// scheduler only depends on the History interface.
package layerhistory

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/heliowm/helio-core/pkg/display"
	"github.com/heliowm/helio-core/pkg/logger"
	"go.uber.org/zap"
)

// LayerVoteType is how a layer's activity is turned into a rate vote.
type LayerVoteType int

const (
	// NoVote excludes the layer from content detection (status-bar-like
	// surfaces, or content detection disabled).
	NoVote LayerVoteType = iota
	// Min pins the layer to the minimum rate (wallpaper).
	Min
	// Heuristic derives the desired rate from observed present times.
	Heuristic
)

// LayerUpdateType describes why a layer was recorded.
type LayerUpdateType int

const (
	UpdateTypeBuffer LayerUpdateType = iota
	UpdateTypeAnimationTX
	UpdateTypeSetFrameRate
)

// WindowType is the coarse surface classification the scheduler uses to
// pick a vote type.
type WindowType int

const (
	WindowTypeApplication WindowType = iota
	WindowTypeStatusBar
	WindowTypeWallpaper
)

// Layer is the minimal surface the history needs from a compositor layer.
type Layer interface {
	Name() string
	UID() uint32
	WindowType() WindowType
}

// LayerRequirement is one layer's contribution to the content summary.
type LayerRequirement struct {
	Name               string
	UID                uint32
	Vote               LayerVoteType
	DesiredRefreshRate display.Fps
	Weight             float64
}

// Summary is the content requirement set handed to the policy.
type Summary []LayerRequirement

// History is the layer-history surface the scheduler consumes.
type History interface {
	RegisterLayer(layer Layer, vote LayerVoteType)
	DeregisterLayer(layer Layer)
	Record(layer Layer, presentTime, now int64, updateType LayerUpdateType)
	Summarize(now int64) Summary
	SetModeChangePending(pending bool)
	SetDisplayArea(area uint32)
	UpdateThermalFps(fps display.Fps)
	Clear()
}

// activityWindow is how far back presents count toward the rate estimate.
const activityWindow = int64(time.Second)

// maxPresentSamples bounds the per-layer present-time window.
const maxPresentSamples = 90

type layerRecord struct {
	layer    Layer
	vote     LayerVoteType
	presents []int64
}

// InMemoryHistory is the default History implementation: per-layer present
// timestamps in a bounded window, mean-interval rate estimation.
type InMemoryHistory struct {
	mu sync.Mutex

	layers            map[Layer]*layerRecord
	modeChangePending bool
	displayArea       uint32
	thermalFps        display.Fps

	log *zap.SugaredLogger
}

// NewInMemoryHistory creates an empty history.
func NewInMemoryHistory() *InMemoryHistory {
	return &InMemoryHistory{
		layers: make(map[Layer]*layerRecord),
		log:    logger.For(logger.ComponentLayerHistory),
	}
}

// RegisterLayer adds a layer with the given vote type.
func (h *InMemoryHistory) RegisterLayer(layer Layer, vote LayerVoteType) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.layers[layer] = &layerRecord{layer: layer, vote: vote}
}

// DeregisterLayer removes a layer.
func (h *InMemoryHistory) DeregisterLayer(layer Layer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.layers, layer)
}

// Record notes one presentation of a layer.
func (h *InMemoryHistory) Record(layer Layer, presentTime, now int64, updateType LayerUpdateType) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.layers[layer]
	if !ok {
		h.log.Debugf("record for unregistered layer %q dropped", layer.Name())

		return
	}

	rec.presents = append(rec.presents, presentTime)
	if len(rec.presents) > maxPresentSamples {
		rec.presents = rec.presents[1:]
	}
}

// Summarize folds recent activity into the content requirement set.
func (h *InMemoryHistory) Summarize(now int64) Summary {
	h.mu.Lock()
	defer h.mu.Unlock()

	var summary Summary
	for _, rec := range h.layers {
		switch rec.vote {
		case NoVote:
			continue
		case Min:
			summary = append(summary, LayerRequirement{
				Name:   rec.layer.Name(),
				UID:    rec.layer.UID(),
				Vote:   Min,
				Weight: 1,
			})
		case Heuristic:
			fps := estimateFps(rec.presents, now)
			if !fps.IsValid() {
				continue
			}
			summary = append(summary, LayerRequirement{
				Name:               rec.layer.Name(),
				UID:                rec.layer.UID(),
				Vote:               Heuristic,
				DesiredRefreshRate: fps,
				Weight:             1,
			})
		}
	}

	return summary
}

// estimateFps derives a rate from the mean present interval within the
// activity window.
func estimateFps(presents []int64, now int64) display.Fps {
	var recent []int64
	for _, t := range presents {
		if now-t <= activityWindow {
			recent = append(recent, t)
		}
	}

	if len(recent) < 2 {
		return 0
	}

	mean := float64(recent[len(recent)-1]-recent[0]) / float64(len(recent)-1)
	if mean <= 0 {
		return 0
	}

	return display.Fps(math.Round(float64(time.Second) / mean))
}

// SetModeChangePending records whether a mode change is in flight;
// Summarize does not consult the flag.
func (h *InMemoryHistory) SetModeChangePending(pending bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.modeChangePending = pending
}

// SetDisplayArea records the display area; Summarize does not use it and
// gives every requirement weight 1.
func (h *InMemoryHistory) SetDisplayArea(area uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.displayArea = area
}

// UpdateThermalFps records the thermal cap, which Dump reports; Summarize
// does not clamp votes to it.
func (h *InMemoryHistory) UpdateThermalFps(fps display.Fps) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.thermalFps = fps
}

// Clear drops all recorded activity so rate detection re-seeds, keeping
// registrations.
func (h *InMemoryHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, rec := range h.layers {
		rec.presents = rec.presents[:0]
	}
}

// Dump formats the registry for diagnostics.
func (h *InMemoryHistory) Dump() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return fmt.Sprintf("LayerHistory: %d layers, thermalFps=%s", len(h.layers), h.thermalFps)
}
