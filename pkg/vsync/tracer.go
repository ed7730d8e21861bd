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
	"sync"

	"github.com/heliowm/helio-core/pkg/metrics"
)

// PredictedVsyncTracer toggles a parity metric at every predicted vsync.
// Plotting the bit against hardware vsync timestamps makes model drift
// visible at a glance. Enabled via the show_predicted_vsync debug option.
type PredictedVsyncTracer struct {
	mu           sync.Mutex
	parity       bool
	registration *Registration
}

// NewPredictedVsyncTracer installs the tracer on the dispatch.
func NewPredictedVsyncTracer(dispatch *Dispatch) *PredictedVsyncTracer {
	t := &PredictedVsyncTracer{}
	t.registration = dispatch.Register(t.callback, "PredictedVsyncTracer")
	t.schedule()

	return t
}

func (t *PredictedVsyncTracer) schedule() {
	_, _ = t.registration.Schedule(ScheduleTiming{})
}

func (t *PredictedVsyncTracer) callback(_, _, _ int64) {
	t.mu.Lock()
	t.parity = !t.parity
	bit := t.parity
	t.mu.Unlock()

	metrics.SetPredictedVsyncParity(bit)
	t.schedule()
}

// Close removes the tracer from the dispatch.
func (t *PredictedVsyncTracer) Close() {
	t.registration.Cancel()
}
