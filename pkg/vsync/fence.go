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
	"sync"
)

// SignalTimePending is returned by FenceTime.SignalTime while the fence has
// not signaled yet.
const SignalTimePending = int64(math.MaxInt64)

// FenceTime exposes the signal timestamp of a presentation fence.
type FenceTime interface {
	// SignalTime returns the monotonic instant the fence signaled, or
	// SignalTimePending.
	SignalTime() int64
}

// Fence is a FenceTime the host signals once presentation completed.
type Fence struct {
	mu     sync.Mutex
	signal int64
}

// NewFence creates an unsignaled fence.
func NewFence() *Fence {
	return &Fence{signal: SignalTimePending}
}

// NewSignaledFence creates a fence that signaled at ts.
func NewSignaledFence(ts int64) *Fence {
	return &Fence{signal: ts}
}

// Signal marks the fence signaled at ts. Signaling twice keeps the first
// timestamp.
func (f *Fence) Signal(ts int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.signal == SignalTimePending {
		f.signal = ts
	}
}

// SignalTime returns the signal instant or SignalTimePending.
func (f *Fence) SignalTime() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.signal
}
