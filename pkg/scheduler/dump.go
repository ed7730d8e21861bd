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
	"sort"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/tiendc/go-deepcopy"
	"github.com/united-manufacturing-hub/expiremap/v2/pkg/expiremap"

	"github.com/heliowm/helio-core/pkg/constants"
	"github.com/heliowm/helio-core/pkg/display"
)

// ModeChangeRecord is one journal entry of a dispatched mode switch.
type ModeChangeRecord struct {
	Seq     int64               `json:"seq"`
	Rate    display.RefreshRate `json:"rate"`
	Event   string              `json:"event"`
	Trigger string              `json:"trigger"`
}

// modeChangeJournal keeps the recent mode transitions for dumps. Entries
// age out on their own; the journal never grows unbounded.
type modeChangeJournal struct {
	entries *expiremap.ExpireMap[int64, ModeChangeRecord]
	seq     atomic.Int64
}

func newModeChangeJournal() *modeChangeJournal {
	return &modeChangeJournal{
		entries: expiremap.NewEx[int64, ModeChangeRecord](constants.ModeChangeJournalTTL, constants.ModeChangeJournalTTL),
	}
}

func (j *modeChangeJournal) record(rate display.RefreshRate, event display.ModeEvent, trigger string) {
	seq := j.seq.Add(1)
	j.entries.Set(seq, ModeChangeRecord{
		Seq:     seq,
		Rate:    rate,
		Event:   event.String(),
		Trigger: trigger,
	})
}

func (j *modeChangeJournal) snapshot() []ModeChangeRecord {
	records := make([]ModeChangeRecord, 0, j.entries.Length())
	j.entries.Range(func(_ int64, rec ModeChangeRecord) bool {
		records = append(records, rec)

		return true
	})

	sort.Slice(records, func(i, k int) bool { return records[i].Seq < records[k].Seq })

	return records
}

// DumpState is the diagnostic snapshot served on the debug endpoint.
type DumpState struct {
	Features Features `json:"features"`

	OverridesBackdoor  map[uint32]display.Fps `json:"overridesBackdoor"`
	OverridesByContent map[uint32]display.Fps `json:"overridesByContent"`

	HwVsyncEnabled   bool `json:"hwVsyncEnabled"`
	HwVsyncAvailable bool `json:"hwVsyncAvailable"`

	TrackerPeriod int64  `json:"trackerPeriodNs"`
	VsyncDispatch string `json:"vsyncDispatch"`
	VsyncReactor  string `json:"vsyncReactor"`

	Timers []string `json:"timers"`

	Connections int `json:"connections"`

	RecentModeChanges []ModeChangeRecord `json:"recentModeChanges"`
}

// DumpState gathers a consistent diagnostic snapshot.
func (s *Scheduler) DumpState() DumpState {
	var state DumpState

	s.featureMu.Lock()
	// The summary slice and cached params leak internal pointers without a
	// deep copy.
	_ = deepcopy.Copy(&state.Features, &s.features)
	s.featureMu.Unlock()

	s.overridesMu.Lock()
	state.OverridesBackdoor = make(map[uint32]display.Fps, len(s.overridesBackdoor))
	for uid, fps := range s.overridesBackdoor {
		state.OverridesBackdoor[uid] = fps
	}
	state.OverridesByContent = make(map[uint32]display.Fps, len(s.overridesByContent))
	for uid, fps := range s.overridesByContent {
		state.OverridesByContent[uid] = fps
	}
	s.overridesMu.Unlock()

	s.hwVsyncMu.Lock()
	state.HwVsyncEnabled = s.primaryHwVsyncEnabled
	state.HwVsyncAvailable = s.hwVsyncAvailable
	s.hwVsyncMu.Unlock()

	state.TrackerPeriod = s.schedule.Tracker.CurrentPeriod()
	state.VsyncDispatch = s.schedule.Dispatch.Dump()
	state.VsyncReactor = s.schedule.Reactor.Dump()

	if s.idleTimer != nil {
		state.Timers = append(state.Timers, s.idleTimer.Dump())
	}
	if s.touchTimer != nil {
		state.Timers = append(state.Timers, s.touchTimer.Dump())
	}
	if s.displayPowerTimer != nil {
		state.Timers = append(state.Timers, s.displayPowerTimer.Dump())
	}

	s.registryMu.Lock()
	state.Connections = len(s.connections)
	s.registryMu.Unlock()

	state.RecentModeChanges = s.journal.snapshot()

	return state
}

// Dump renders the diagnostic snapshot as JSON.
func (s *Scheduler) Dump() ([]byte, error) {
	return json.MarshalIndent(s.DumpState(), "", "  ")
}

// DumpVsync formats the vsync subsystem alone, for the tight inner loop
// of bug reports.
func (s *Scheduler) DumpVsync() string {
	return s.schedule.Reactor.Dump() + s.schedule.Dispatch.Dump()
}
