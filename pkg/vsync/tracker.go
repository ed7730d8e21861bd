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

package vsync

import (
	"math"
	"sort"
	"sync"

	"github.com/heliowm/helio-core/pkg/constants"
	"github.com/heliowm/helio-core/pkg/display"
	"github.com/heliowm/helio-core/pkg/logger"
	"github.com/heliowm/helio-core/pkg/metrics"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Tracker learns the period and phase of the hardware vsync signal from
// timestamp samples and predicts future vsync instants.
type Tracker interface {
	// AddVsyncTimestamp feeds one hardware vsync timestamp. Returns false
	// when the sample was rejected (duplicate or backwards in time).
	AddVsyncTimestamp(ts int64) bool
	// NextAnticipatedVSyncTimeFrom returns the smallest predicted vsync
	// instant at or after now.
	NextAnticipatedVSyncTimeFrom(now int64) int64
	// CurrentPeriod returns the current period estimate, always > 0.
	CurrentPeriod() int64
	// IsVSyncInPhase reports whether ts lands on the sub-harmonic of the
	// display rate corresponding to fps.
	IsVSyncInPhase(ts int64, fps display.Fps) bool
	// NeedsMoreSamples reports whether the model is still running on the
	// ideal-period fallback.
	NeedsMoreSamples() bool
	// ResetModel forgets all samples.
	ResetModel()
}

// Predictor is the production Tracker: a least-squares fit of timestamps
// against inferred vsync ordinals, with the top fraction of residuals
// discarded before each fit. Until enough samples accrue, predictions run
// on the ideal period anchored at the most recent sample.
type Predictor struct {
	mu sync.Mutex

	idealPeriod    int64
	historySize    int
	minSamples     int
	outlierPercent int

	timestamps []int64

	// Accepted model: vsync instants are {phase + k*period}.
	hasModel bool
	period   int64
	phase    int64

	log *zap.SugaredLogger
}

// NewPredictor creates a Predictor seeded with the ideal period.
func NewPredictor(idealPeriod int64) *Predictor {
	return &Predictor{
		idealPeriod:    idealPeriod,
		historySize:    constants.VsyncTimestampHistorySize,
		minSamples:     constants.MinimumSamplesForPrediction,
		outlierPercent: constants.DiscardOutlierPercent,
		period:         idealPeriod,
		log:            logger.For(logger.ComponentVsyncTracker),
	}
}

// AddVsyncTimestamp feeds one hardware vsync timestamp.
func (p *Predictor) AddVsyncTimestamp(ts int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.timestamps); n > 0 && ts <= p.timestamps[n-1] {
		p.log.Debugf("rejecting non-monotonic vsync timestamp %d (last %d)", ts, p.timestamps[n-1])
		metrics.IncVsyncSample("rejected")

		return false
	}

	p.timestamps = append(p.timestamps, ts)
	if len(p.timestamps) > p.historySize {
		p.timestamps = p.timestamps[1:]
	}

	p.fitLocked()
	metrics.IncVsyncSample("accepted")
	metrics.SetTrackerPeriod(p.period)

	return true
}

// fitLocked re-estimates period and phase from the sample window.
func (p *Predictor) fitLocked() {
	n := len(p.timestamps)
	if n < p.minSamples {
		return
	}

	base := p.timestamps[0]
	ref := p.period

	// Infer the vsync ordinal of each sample. Gaps where vsync was off show
	// up as multi-period jumps between consecutive timestamps.
	ordinals := make([]float64, n)
	offsets := make([]float64, n)
	for i := 1; i < n; i++ {
		steps := math.Round(float64(p.timestamps[i]-p.timestamps[i-1]) / float64(ref))
		if steps < 1 {
			steps = 1
		}
		ordinals[i] = ordinals[i-1] + steps
		offsets[i] = float64(p.timestamps[i] - base)
	}

	alpha, beta := stat.LinearRegression(ordinals, offsets, nil, false)

	// Discard the worst residuals, but never below the sample floor.
	discard := n * p.outlierPercent / 100
	if n-discard < p.minSamples {
		discard = n - p.minSamples
	}
	if discard > 0 {
		type residual struct {
			idx int
			mag float64
		}
		residuals := make([]residual, n)
		for i := range ordinals {
			residuals[i] = residual{i, math.Abs(offsets[i] - (alpha + beta*ordinals[i]))}
		}
		sort.Slice(residuals, func(i, j int) bool { return residuals[i].mag > residuals[j].mag })

		drop := make(map[int]bool, discard)
		for _, r := range residuals[:discard] {
			drop[r.idx] = true
		}

		keptOrdinals := make([]float64, 0, n-discard)
		keptOffsets := make([]float64, 0, n-discard)
		for i := range ordinals {
			if !drop[i] {
				keptOrdinals = append(keptOrdinals, ordinals[i])
				keptOffsets = append(keptOffsets, offsets[i])
			}
		}

		alpha, beta = stat.LinearRegression(keptOrdinals, keptOffsets, nil, false)
	}

	if beta < float64(p.idealPeriod)/2 || beta > float64(p.idealPeriod)*2 || math.IsNaN(beta) {
		p.log.Debugf("discarding implausible fit: period %.0fns (ideal %d)", beta, p.idealPeriod)

		return
	}

	p.hasModel = true
	p.period = int64(math.Round(beta))
	p.phase = base + int64(math.Round(alpha))
}

// NextAnticipatedVSyncTimeFrom returns the smallest predicted vsync instant
// at or after now.
func (p *Predictor) NextAnticipatedVSyncTimeFrom(now int64) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.nextFromLocked(now)
}

func (p *Predictor) nextFromLocked(now int64) int64 {
	anchor := p.phase
	if !p.hasModel {
		// Anchor the ideal-period grid at the freshest sample if any.
		if n := len(p.timestamps); n > 0 {
			anchor = p.timestamps[n-1]
		} else {
			anchor = now
		}
	}

	k := int64(math.Ceil(float64(now-anchor) / float64(p.period)))
	t := anchor + k*p.period
	for t < now {
		t += p.period
	}

	return t
}

// CurrentPeriod returns the current period estimate.
func (p *Predictor) CurrentPeriod() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.period
}

// IsVSyncInPhase reports whether ts is congruent to a vsync instant of the
// sub-harmonic corresponding to fps.
func (p *Predictor) IsVSyncInPhase(ts int64, fps display.Fps) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !fps.IsValid() {
		return true
	}

	displayFps := display.FpsFromPeriod(p.period)
	divider := int64(math.Round(float64(displayFps) / float64(fps)))
	// divider 1 or 0 means the override asks for at least the display
	// rate (0 once it exceeds twice the display rate); deliver every vsync.
	if divider <= 1 {
		return true
	}

	ordinal := int64(math.Round(float64(ts-p.phase) / float64(p.period)))

	return ordinal%divider == 0
}

// NeedsMoreSamples reports whether predictions are still the ideal fallback.
func (p *Predictor) NeedsMoreSamples() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return !p.hasModel || len(p.timestamps) < p.minSamples
}

// ResetModel forgets all samples and falls back to the ideal period.
func (p *Predictor) ResetModel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.timestamps = p.timestamps[:0]
	p.hasModel = false
	p.period = p.idealPeriod
	p.phase = 0
}
