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

package timer_test

import (
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/heliowm/helio-core/pkg/timer"
)

var _ = Describe("OneShotTimer", func() {
	var (
		resets   atomic.Int32
		expiries atomic.Int32
		t        *timer.OneShotTimer
	)

	BeforeEach(func() {
		resets.Store(0)
		expiries.Store(0)
		t = timer.New("TestTimer", 80*time.Millisecond,
			func() { resets.Add(1) },
			func() { expiries.Add(1) })
	})

	AfterEach(func() {
		t.Stop()
	})

	It("should dispatch the reset state once on start", func() {
		t.Start()

		Eventually(func() int32 { return resets.Load() }, time.Second).Should(Equal(int32(1)))
		Expect(expiries.Load()).To(BeZero())
	})

	It("should expire when the interval elapses without a reset", func() {
		t.Start()

		Eventually(func() int32 { return expiries.Load() }, time.Second).Should(Equal(int32(1)))
	})

	It("should not expire while reset keeps arriving", func() {
		t.Start()

		for i := 0; i < 5; i++ {
			time.Sleep(40 * time.Millisecond)
			t.Reset()
		}

		Expect(expiries.Load()).To(BeZero())
	})

	It("should fire the reset callback when a reset leaves the expired state", func() {
		t.Start()

		Eventually(func() int32 { return expiries.Load() }, time.Second).Should(Equal(int32(1)))
		before := resets.Load()

		t.Reset()

		Eventually(func() int32 { return resets.Load() }, time.Second).Should(Equal(before + 1))
	})

	It("should not fire the reset callback for a reset while still armed", func() {
		t.Start()

		Eventually(func() int32 { return resets.Load() }, time.Second).Should(Equal(int32(1)))

		t.Reset()
		time.Sleep(20 * time.Millisecond)

		Expect(resets.Load()).To(Equal(int32(1)))
	})

	It("should rearm after a post-expiry reset", func() {
		t.Start()

		Eventually(func() int32 { return expiries.Load() }, time.Second).Should(Equal(int32(1)))
		t.Reset()
		Eventually(func() int32 { return expiries.Load() }, time.Second).Should(Equal(int32(2)))
	})

	It("should stop cleanly and stay silent afterwards", func() {
		t.Start()
		t.Stop()

		time.Sleep(150 * time.Millisecond)
		Expect(expiries.Load()).To(BeZero())

		Expect(t.Dump()).To(ContainSubstring("idle"))
	})

	It("should ignore reset on a stopped timer", func() {
		t.Reset()

		time.Sleep(20 * time.Millisecond)
		Expect(resets.Load()).To(BeZero())
	})
})
