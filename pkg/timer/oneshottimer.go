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

// Package timer provides the named inactivity timers the scheduler uses for
// idle, touch and display-power tracking.
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/heliowm/helio-core/pkg/logger"
	"go.uber.org/zap"
)

const (
	stateIdle    = "idle"
	stateArmed   = "armed"
	stateExpired = "expired"

	eventStart  = "start"
	eventReset  = "reset"
	eventExpire = "expire"
	eventStop   = "stop"
)

// OneShotTimer is an inactivity window with its own goroutine. onReset is
// invoked on start and on every reset that transitions away from the
// expired state; onExpired when the interval elapses without a reset. Both
// run on the timer goroutine.
type OneShotTimer struct {
	name     string
	interval time.Duration

	onReset   func()
	onExpired func()

	machine *fsm.FSM

	mu      sync.Mutex
	started bool
	resetCh chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup

	log *zap.SugaredLogger
}

// New creates a stopped timer. Call Start to arm it.
func New(name string, interval time.Duration, onReset, onExpired func()) *OneShotTimer {
	return &OneShotTimer{
		name:      name,
		interval:  interval,
		onReset:   onReset,
		onExpired: onExpired,
		machine: fsm.NewFSM(
			stateIdle,
			fsm.Events{
				{Name: eventStart, Src: []string{stateIdle}, Dst: stateArmed},
				{Name: eventReset, Src: []string{stateArmed, stateExpired}, Dst: stateArmed},
				{Name: eventExpire, Src: []string{stateArmed}, Dst: stateExpired},
				{Name: eventStop, Src: []string{stateArmed, stateExpired}, Dst: stateIdle},
			},
			fsm.Callbacks{},
		),
		log: logger.For(logger.ComponentOneShotTimer).Named(name),
	}
}

// Start arms the timer and spawns its goroutine. Starting a started timer
// is a no-op.
func (t *OneShotTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return
	}

	t.started = true
	t.resetCh = make(chan struct{}, 1)
	t.stopCh = make(chan struct{})
	_ = t.machine.Event(context.Background(), eventStart)

	t.wg.Add(1)
	go t.loop()
}

// Reset rearms the inactivity window. No-op on a stopped timer.
func (t *OneShotTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return
	}

	select {
	case t.resetCh <- struct{}{}:
	default:
	}
}

// Stop joins the timer goroutine. The timer can be started again after.
func (t *OneShotTimer) Stop() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()

		return
	}

	t.started = false
	close(t.stopCh)
	t.mu.Unlock()

	t.wg.Wait()
	_ = t.machine.Event(context.Background(), eventStop)
}

// Dump formats the timer state for diagnostics.
func (t *OneShotTimer) Dump() string {
	return fmt.Sprintf("%s: interval=%s state=%s", t.name, t.interval, t.machine.Current())
}

func (t *OneShotTimer) loop() {
	defer t.wg.Done()

	// Initial dispatch: a freshly started timer is in the reset state.
	t.fireReset()

	for {
		interval := time.NewTimer(t.interval)
		select {
		case <-t.stopCh:
			interval.Stop()

			return
		case <-t.resetCh:
			interval.Stop()
			t.handleReset()
		case <-interval.C:
			if err := t.machine.Event(context.Background(), eventExpire); err == nil {
				t.fireExpired()
			}

			// Expired. Nothing to do until a reset or stop arrives.
			select {
			case <-t.stopCh:
				return
			case <-t.resetCh:
				t.handleReset()
			}
		}
	}
}

func (t *OneShotTimer) handleReset() {
	wasExpired := t.machine.Is(stateExpired)
	_ = t.machine.Event(context.Background(), eventReset)

	if wasExpired {
		t.fireReset()
	}
}

func (t *OneShotTimer) fireReset() {
	if t.onReset != nil {
		t.onReset()
	}
}

func (t *OneShotTimer) fireExpired() {
	t.log.Debugf("expired after %s", t.interval)

	if t.onExpired != nil {
		t.onExpired()
	}
}
