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

package eventthread

import (
	"sync"
	"time"
)

// InjectVSyncSource substitutes synthetic vsync events for the
// tracker-driven stream. Used by tests and debugging tools; events only
// flow when something calls Inject.
type InjectVSyncSource struct {
	mu       sync.Mutex
	callback SourceCallback
}

// NewInjectVSyncSource creates an idle injection source.
func NewInjectVSyncSource() *InjectVSyncSource {
	return &InjectVSyncSource{}
}

// Name returns the source name.
func (s *InjectVSyncSource) Name() string {
	return "inject"
}

// SetVSyncEnabled is a no-op: injected events are pushed, not pulled.
func (s *InjectVSyncSource) SetVSyncEnabled(bool) {}

// SetCallback installs the event consumer.
func (s *InjectVSyncSource) SetCallback(cb SourceCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callback = cb
}

// SetDuration is a no-op for injected events.
func (s *InjectVSyncSource) SetDuration(time.Duration, time.Duration) {}

// Inject pushes one synthetic vsync event.
func (s *InjectVSyncSource) Inject(when, expectedVsync, deadline int64) {
	s.mu.Lock()
	cb := s.callback
	s.mu.Unlock()

	if cb != nil {
		cb.OnVSyncEvent(when, expectedVsync, deadline)
	}
}

// Dump formats the source state for diagnostics.
func (s *InjectVSyncSource) Dump() string {
	return "InjectVSyncSource"
}
