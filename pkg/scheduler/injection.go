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

import "github.com/heliowm/helio-core/pkg/eventthread"

// EnableVSyncInjection toggles the synthetic vsync route. The injector
// rides its own connection and coexists with the hardware source; the
// connection is created once and its handle returned on every call.
// Toggling to the current state is a no-op.
func (s *Scheduler) EnableVSyncInjection(enable bool) ConnectionHandle {
	s.injectorMu.Lock()
	defer s.injectorMu.Unlock()

	if s.injectVSyncs == enable {
		return s.injectorHandle
	}

	if enable {
		s.log.Debugf("enabling vsync injection")
	} else {
		s.log.Debugf("disabling vsync injection")
	}

	if s.injectorHandle == InvalidHandle {
		source := eventthread.NewInjectVSyncSource()
		s.injectorSource = source

		thread := eventthread.New("inject", source, nil, nil, nil, nil)
		// Events only flow on a connected, powered display; the injector is
		// always both.
		thread.OnHotplugReceived(true)
		thread.OnScreenAcquired()

		s.injectorHandle = s.registerConnection(thread, false)
	}

	s.injectVSyncs = enable

	return s.injectorHandle
}

// InjectVSync pushes one synthetic vsync event. Returns false while
// injection is disabled.
func (s *Scheduler) InjectVSync(when, expectedVsync, deadline int64) bool {
	s.injectorMu.Lock()
	enabled := s.injectVSyncs
	source := s.injectorSource
	s.injectorMu.Unlock()

	if !enabled || source == nil {
		return false
	}

	source.Inject(when, expectedVsync, deadline)

	return true
}
