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

package constants

import "time"

const (
	// ResyncIgnoreDelay throttles resync requests coming in from event
	// connections. Within this window only the first request reaches the
	// hardware vsync path.
	ResyncIgnoreDelay = 750 * time.Millisecond

	// KernelTimerFpsThreshold separates "performance" rates from rates the
	// kernel idle timer may park the display at. The kernel timer only
	// matters above this rate on Reset and at or below it on Expired.
	KernelTimerFpsThreshold = 65.0

	// AppConnectionName is the one connection whose vsync requests also
	// trigger a repaint when the display was idled.
	AppConnectionName = "app"

	// ModeChangeJournalTTL is how long a mode transition stays visible in
	// the dump journal.
	ModeChangeJournalTTL = time.Minute

	// FpsEqualityMargin is the tolerance for treating two rates as equal.
	FpsEqualityMargin = 0.001
)
