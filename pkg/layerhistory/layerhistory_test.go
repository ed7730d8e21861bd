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

package layerhistory_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/heliowm/helio-core/pkg/display"
	"github.com/heliowm/helio-core/pkg/layerhistory"
)

type testLayer struct {
	name   string
	uid    uint32
	window layerhistory.WindowType
}

func (l *testLayer) Name() string { return l.name }
func (l *testLayer) UID() uint32  { return l.uid }

func (l *testLayer) WindowType() layerhistory.WindowType { return l.window }

var _ = Describe("InMemoryHistory", func() {
	var history *layerhistory.InMemoryHistory

	BeforeEach(func() {
		history = layerhistory.NewInMemoryHistory()
	})

	It("should estimate the rate of a steadily presenting layer", func() {
		layer := &testLayer{name: "video", uid: 42}
		history.RegisterLayer(layer, layerhistory.Heuristic)

		const frame = int64(33 * time.Millisecond) // ~30fps
		now := int64(0)
		for i := 0; i < 20; i++ {
			now = int64(i) * frame
			history.Record(layer, now, now, layerhistory.UpdateTypeBuffer)
		}

		summary := history.Summarize(now)
		Expect(summary).To(HaveLen(1))
		Expect(summary[0].UID).To(Equal(uint32(42)))
		Expect(float64(summary[0].DesiredRefreshRate)).To(BeNumerically("~", 30, 1))
	})

	It("should exclude no-vote layers from the summary", func() {
		layer := &testLayer{name: "statusbar", window: layerhistory.WindowTypeStatusBar}
		history.RegisterLayer(layer, layerhistory.NoVote)
		history.Record(layer, 0, 0, layerhistory.UpdateTypeBuffer)

		Expect(history.Summarize(0)).To(BeEmpty())
	})

	It("should report min votes without a desired rate", func() {
		layer := &testLayer{name: "wallpaper", window: layerhistory.WindowTypeWallpaper}
		history.RegisterLayer(layer, layerhistory.Min)

		summary := history.Summarize(0)
		Expect(summary).To(HaveLen(1))
		Expect(summary[0].Vote).To(Equal(layerhistory.Min))
	})

	It("should drop idle heuristic layers from the summary", func() {
		layer := &testLayer{name: "app", uid: 1}
		history.RegisterLayer(layer, layerhistory.Heuristic)

		history.Record(layer, 0, 0, layerhistory.UpdateTypeBuffer)
		history.Record(layer, int64(16*time.Millisecond), int64(16*time.Millisecond), layerhistory.UpdateTypeBuffer)

		// Two seconds later the activity window has drained.
		Expect(history.Summarize(int64(2 * time.Second))).To(BeEmpty())
	})

	It("should re-seed detection after Clear", func() {
		layer := &testLayer{name: "app", uid: 1}
		history.RegisterLayer(layer, layerhistory.Heuristic)
		for i := int64(0); i < 10; i++ {
			history.Record(layer, i*16_666_667, i*16_666_667, layerhistory.UpdateTypeBuffer)
		}

		history.Clear()

		Expect(history.Summarize(10 * 16_666_667)).To(BeEmpty())
	})

	It("should ignore records for unregistered layers", func() {
		layer := &testLayer{name: "ghost"}
		history.Record(layer, 0, 0, layerhistory.UpdateTypeBuffer)

		Expect(history.Summarize(0)).To(BeEmpty())
	})

	It("should surface the thermal cap in the dump", func() {
		history.UpdateThermalFps(display.Fps(90))

		Expect(history.Dump()).To(ContainSubstring("90.00Hz"))
	})
})
