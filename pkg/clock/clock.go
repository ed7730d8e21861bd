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

// Package clock is the single time source of the scheduling core. All time
// values handed between components are nanoseconds in one monotonic domain.
package clock

import (
	"sync"
	"time"
)

// Clock provides monotonic time in nanoseconds.
type Clock interface {
	Now() int64
}

// SystemClock reads the process monotonic clock. The zero offset is the
// clock's construction time; only differences are meaningful.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a monotonic system clock.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns nanoseconds since construction.
func (c *SystemClock) Now() int64 {
	return time.Since(c.start).Nanoseconds()
}

// ManualClock is a test clock advanced by hand.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock creates a manual clock starting at now.
func NewManualClock(now int64) *ManualClock {
	return &ManualClock{now: now}
}

// Now returns the current manual time.
func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance moves the clock forward by d nanoseconds.
func (c *ManualClock) Advance(d int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now += d
}

// SetNow jumps the clock to now. Going backwards is not allowed and is
// silently ignored.
func (c *ManualClock) SetNow(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now > c.now {
		c.now = now
	}
}
