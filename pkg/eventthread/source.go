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

// Package eventthread fans vsync events out to client connections. Each
// EventThread owns one vsync source: either a dispatch-backed source that
// follows the hardware model, or an injected source for diagnostics.
package eventthread

import (
	"fmt"
	"sync"
	"time"

	"github.com/heliowm/helio-core/pkg/logger"
	"github.com/heliowm/helio-core/pkg/vsync"
	"go.uber.org/zap"
)

// SourceCallback receives vsync events from a Source.
type SourceCallback interface {
	OnVSyncEvent(when, expectedVsync, deadline int64)
}

// Source produces vsync events for one EventThread.
type Source interface {
	Name() string
	SetVSyncEnabled(enabled bool)
	SetCallback(cb SourceCallback)
	SetDuration(workDuration, readyDuration time.Duration)
	Dump() string
}

// DispSyncSource emits an event ahead of every predicted vsync while
// enabled, using a dispatch registration with the configured work and
// ready lead times.
type DispSyncSource struct {
	name string

	mu            sync.Mutex
	enabled       bool
	callback      SourceCallback
	workDuration  time.Duration
	readyDuration time.Duration

	registration *vsync.Registration
	traceVsync   bool

	log *zap.SugaredLogger
}

// NewDispSyncSource registers a callback slot on the dispatch. The source
// starts disabled.
func NewDispSyncSource(dispatch *vsync.Dispatch, workDuration, readyDuration time.Duration, traceVsync bool, name string) *DispSyncSource {
	s := &DispSyncSource{
		name:          name,
		workDuration:  workDuration,
		readyDuration: readyDuration,
		traceVsync:    traceVsync,
		log:           logger.For(logger.ComponentEventThread).Named(name),
	}
	s.registration = dispatch.Register(s.onDispatch, name)

	return s
}

// Name returns the source name.
func (s *DispSyncSource) Name() string {
	return s.name
}

// SetVSyncEnabled starts or stops the event stream.
func (s *DispSyncSource) SetVSyncEnabled(enabled bool) {
	s.mu.Lock()
	wasEnabled := s.enabled
	s.enabled = enabled
	s.mu.Unlock()

	if enabled && !wasEnabled {
		s.schedule(0)
	}
	if !enabled && wasEnabled {
		// The in-flight wake may still fire; onDispatch drops it.
		s.log.Debugf("vsync events disabled")
	}
}

// SetCallback installs the event consumer.
func (s *DispSyncSource) SetCallback(cb SourceCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callback = cb
}

// SetDuration changes the work and ready lead times. Takes effect at the
// next scheduled wake.
func (s *DispSyncSource) SetDuration(workDuration, readyDuration time.Duration) {
	s.mu.Lock()
	s.workDuration = workDuration
	s.readyDuration = readyDuration
	s.mu.Unlock()
}

func (s *DispSyncSource) schedule(earliestVsync int64) {
	s.mu.Lock()
	work := s.workDuration
	ready := s.readyDuration
	s.mu.Unlock()

	_, err := s.registration.Schedule(vsync.ScheduleTiming{
		WorkDuration:  work.Nanoseconds(),
		ReadyDuration: ready.Nanoseconds(),
		EarliestVsync: earliestVsync,
	})
	if err != nil {
		s.log.Warnf("schedule failed: %v", err)
	}
}

func (s *DispSyncSource) onDispatch(vsyncTime, wakeupTime, readyTime int64) {
	s.mu.Lock()
	enabled := s.enabled
	cb := s.callback
	s.mu.Unlock()

	if !enabled {
		return
	}

	if s.traceVsync {
		s.log.Debugf("vsync event: vsync=%d wakeup=%d ready=%d", vsyncTime, wakeupTime, readyTime)
	}

	if cb != nil {
		cb.OnVSyncEvent(wakeupTime, vsyncTime, readyTime)
	}

	// Aim strictly past the vsync just delivered.
	s.schedule(vsyncTime + 1)
}

// Close removes the source from the dispatch.
func (s *DispSyncSource) Close() {
	s.registration.Cancel()
}

// Dump formats the source state for diagnostics.
func (s *DispSyncSource) Dump() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fmt.Sprintf("DispSyncSource %s: enabled=%t work=%s ready=%s", s.name, s.enabled, s.workDuration, s.readyDuration)
}
