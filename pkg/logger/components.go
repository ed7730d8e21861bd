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

package logger

// Component names used with For(). Keeping them here gives dumps and log
// filters one stable vocabulary.
const (
	ComponentCore = "Core"

	// Vsync subsystem
	ComponentVsyncTracker  = "VsyncTracker"
	ComponentVsyncDispatch = "VsyncDispatch"
	ComponentVsyncReactor  = "VsyncReactor"

	// Scheduler
	ComponentScheduler    = "Scheduler"
	ComponentEventThread  = "EventThread"
	ComponentOneShotTimer = "OneShotTimer"

	// Collaborators
	ComponentLayerHistory  = "LayerHistory"
	ComponentThermal       = "ThermalMonitor"
	ComponentWatchdog      = "VsyncWatchdog"
	ComponentConfigManager = "ConfigManager"
)
