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
	// WatchdogCheckInterval is how often the vsync watchdog inspects the
	// time since the last dispatched callback.
	WatchdogCheckInterval = time.Second

	// WatchdogStarvedPeriods is how many expected vsync periods may elapse
	// without a dispatched callback before the watchdog reports starvation.
	WatchdogStarvedPeriods = 120

	// ThermalPollInterval is how often the thermal monitor samples the
	// temperature sensors.
	ThermalPollInterval = 2 * time.Second
)
