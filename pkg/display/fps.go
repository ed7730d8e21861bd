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

package display

import (
	"fmt"
	"math"
	"time"

	"github.com/heliowm/helio-core/pkg/constants"
)

// Fps is a refresh rate in frames per second. Zero and negative values are
// invalid. Comparisons always go through the margin helpers; refresh rates
// derived from hardware periods rarely come out as exact integers.
type Fps float64

// FpsFromPeriod converts a vsync period in nanoseconds to a rate.
func FpsFromPeriod(periodNs int64) Fps {
	if periodNs <= 0 {
		return 0
	}

	return Fps(float64(time.Second) / float64(periodNs))
}

// IsValid reports whether the rate is positive.
func (f Fps) IsValid() bool {
	return f > 0
}

// Period returns the vsync period in nanoseconds, rounded.
func (f Fps) Period() int64 {
	if !f.IsValid() {
		return 0
	}

	return int64(math.Round(float64(time.Second) / float64(f)))
}

// EqualsWithMargin reports equality within the standard margin.
func (f Fps) EqualsWithMargin(other Fps) bool {
	return math.Abs(float64(f-other)) <= constants.FpsEqualityMargin
}

// GreaterThanWithMargin reports f > other beyond the standard margin.
func (f Fps) GreaterThanWithMargin(other Fps) bool {
	return float64(f) > float64(other)+constants.FpsEqualityMargin
}

// LessThanOrEqualWithMargin reports f <= other within the standard margin.
func (f Fps) LessThanOrEqualWithMargin(other Fps) bool {
	return !f.GreaterThanWithMargin(other)
}

// String formats the rate for logs and dumps.
func (f Fps) String() string {
	return fmt.Sprintf("%.2fHz", float64(f))
}
