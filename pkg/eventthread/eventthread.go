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

package eventthread

import (
	"fmt"
	"sync"
	"time"

	"github.com/heliowm/helio-core/pkg/display"
	"github.com/heliowm/helio-core/pkg/logger"
	"go.uber.org/zap"
)

// EventType classifies delivered events.
type EventType int

const (
	EventVsync EventType = iota
	EventModeChanged
	EventFrameRateOverrides
	EventHotplug
)

// Event is one notification delivered to a connection.
type Event struct {
	Type EventType

	// Vsync fields.
	When          int64
	ExpectedVsync int64
	Deadline      int64
	VsyncPeriod   int64
	Token         FrameToken

	// Mode change fields.
	ModeID display.ModeID
	Period int64

	// Override publication.
	Overrides []display.FrameRateOverride

	// Hotplug.
	Connected bool
}

// ThrottleVsyncCallback reports whether a vsync at expectedVsync must be
// suppressed for uid.
type ThrottleVsyncCallback func(expectedVsync int64, uid uint32) bool

// GetVsyncPeriodFunction returns the effective vsync period for uid,
// stretched by any frame rate override.
type GetVsyncPeriodFunction func(uid uint32) int64

// InterceptVSyncsCallback observes every vsync before fan-out.
type InterceptVSyncsCallback func(when int64)

// Connection is one client's event stream.
type Connection struct {
	thread  *EventThread
	uid     uint32
	resync  func()
	onEvent func(Event)

	vsyncRequested bool
}

// RequestNextVsync asks for one vsync event and pokes the scheduler's
// resync path.
func (c *Connection) RequestNextVsync() {
	c.thread.requestNextVsync(c)
}

// UID returns the owning application uid.
func (c *Connection) UID() uint32 {
	return c.uid
}

// EventThread multiplexes one vsync source onto client connections.
// Events only flow while the display is connected and the screen acquired.
type EventThread struct {
	mu sync.Mutex

	name         string
	source       Source
	tokenManager *TokenManager

	intercept InterceptVSyncsCallback
	throttle  ThrottleVsyncCallback
	getPeriod GetVsyncPeriodFunction

	connections []*Connection

	displayConnected bool
	screenAcquired   bool

	log *zap.SugaredLogger
}

// New wires an EventThread to its source. tokenManager, intercept,
// throttle and getPeriod may be nil.
func New(name string, source Source, tokenManager *TokenManager,
	intercept InterceptVSyncsCallback, throttle ThrottleVsyncCallback,
	getPeriod GetVsyncPeriodFunction) *EventThread {
	t := &EventThread{
		name:         name,
		source:       source,
		tokenManager: tokenManager,
		intercept:    intercept,
		throttle:     throttle,
		getPeriod:    getPeriod,
		log:          logger.For(logger.ComponentEventThread).Named(name),
	}
	source.SetCallback(t)

	return t
}

// CreateEventConnection registers a client. resync runs on every
// RequestNextVsync; onEvent receives the delivered events and may be nil.
func (t *EventThread) CreateEventConnection(uid uint32, resync func(), onEvent func(Event)) *Connection {
	conn := &Connection{thread: t, uid: uid, resync: resync, onEvent: onEvent}

	t.mu.Lock()
	t.connections = append(t.connections, conn)
	t.mu.Unlock()

	return conn
}

// RemoveConnection drops a client.
func (t *EventThread) RemoveConnection(conn *Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, c := range t.connections {
		if c == conn {
			t.connections = append(t.connections[:i], t.connections[i+1:]...)

			break
		}
	}
}

// ConnectionCount returns the number of registered clients.
func (t *EventThread) ConnectionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.connections)
}

func (t *EventThread) requestNextVsync(conn *Connection) {
	t.mu.Lock()
	conn.vsyncRequested = true
	deliverable := t.deliverableLocked()
	t.mu.Unlock()

	if conn.resync != nil {
		conn.resync()
	}

	if deliverable {
		t.source.SetVSyncEnabled(true)
	}
}

func (t *EventThread) deliverableLocked() bool {
	return t.displayConnected && t.screenAcquired
}

// OnVSyncEvent implements SourceCallback: fan one vsync out to every
// requesting, unthrottled connection.
func (t *EventThread) OnVSyncEvent(when, expectedVsync, deadline int64) {
	if t.intercept != nil {
		t.intercept(when)
	}

	type delivery struct {
		conn  *Connection
		event Event
	}

	var deliveries []delivery

	t.mu.Lock()
	if !t.deliverableLocked() {
		t.mu.Unlock()

		return
	}

	pendingRequests := 0
	for _, conn := range t.connections {
		if !conn.vsyncRequested {
			continue
		}
		if t.throttle != nil && t.throttle(expectedVsync, conn.uid) {
			// Not this uid's sub-harmonic; the request stays pending.
			pendingRequests++

			continue
		}

		conn.vsyncRequested = false

		event := Event{
			Type:          EventVsync,
			When:          when,
			ExpectedVsync: expectedVsync,
			Deadline:      deadline,
		}
		if t.getPeriod != nil {
			event.VsyncPeriod = t.getPeriod(conn.uid)
		}
		if t.tokenManager != nil {
			event.Token = t.tokenManager.Generate(when, expectedVsync, deadline)
		}

		deliveries = append(deliveries, delivery{conn, event})
	}
	t.mu.Unlock()

	if pendingRequests == 0 && len(deliveries) == 0 {
		// Nobody is waiting; stop the stream until the next request.
		t.source.SetVSyncEnabled(false)
	}

	for _, d := range deliveries {
		if d.conn.onEvent != nil {
			d.conn.onEvent(d.event)
		}
	}
}

// OnHotplugReceived records display connectivity and tells the clients.
func (t *EventThread) OnHotplugReceived(connected bool) {
	t.mu.Lock()
	t.displayConnected = connected
	conns := append([]*Connection(nil), t.connections...)
	t.mu.Unlock()

	for _, conn := range conns {
		if conn.onEvent != nil {
			conn.onEvent(Event{Type: EventHotplug, Connected: connected})
		}
	}
}

// OnScreenAcquired opens the event gate.
func (t *EventThread) OnScreenAcquired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.screenAcquired = true
}

// OnScreenReleased closes the event gate.
func (t *EventThread) OnScreenReleased() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.screenAcquired = false
}

// OnModeChanged tells the clients the display mode changed.
func (t *EventThread) OnModeChanged(modeID display.ModeID, vsyncPeriod int64) {
	t.broadcast(Event{Type: EventModeChanged, ModeID: modeID, Period: vsyncPeriod})
}

// OnFrameRateOverridesChanged publishes the active override set.
func (t *EventThread) OnFrameRateOverridesChanged(overrides []display.FrameRateOverride) {
	t.broadcast(Event{Type: EventFrameRateOverrides, Overrides: overrides})
}

func (t *EventThread) broadcast(event Event) {
	t.mu.Lock()
	conns := append([]*Connection(nil), t.connections...)
	t.mu.Unlock()

	for _, conn := range conns {
		if conn.onEvent != nil {
			conn.onEvent(event)
		}
	}
}

// SetDuration forwards new work and ready lead times to the source.
func (t *EventThread) SetDuration(workDuration, readyDuration time.Duration) {
	t.source.SetDuration(workDuration, readyDuration)
}

// Dump formats the thread state for diagnostics.
func (t *EventThread) Dump() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("EventThread %s: %d connections, connected=%t acquired=%t\n  %s",
		t.name, len(t.connections), t.displayConnected, t.screenAcquired, t.source.Dump())
}

// Close tears the thread down.
func (t *EventThread) Close() {
	t.source.SetVSyncEnabled(false)

	if closer, ok := t.source.(interface{ Close() }); ok {
		closer.Close()
	}
}
