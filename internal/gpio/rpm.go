package gpio

import (
	"sync"
	"time"
)

// DefaultStale is how long the meter waits for a pulse before it reports
// a stopped engine.
const DefaultStale = 500 * time.Millisecond

// Meter converts tach pulse edges into engine RPM. Edge is called from the
// GPIO event goroutine; RPM from the control loop.
type Meter struct {
	mu    sync.Mutex
	now   func() time.Time
	stale time.Duration

	ppr   float64
	scale float64

	last   time.Time
	period time.Duration
}

// NewMeter creates a meter with one pulse per revolution and unit scale.
func NewMeter(now func() time.Time, stale time.Duration) *Meter {
	if stale <= 0 {
		stale = DefaultStale
	}
	return &Meter{now: now, stale: stale, ppr: 1, scale: 1}
}

// Edge records one tach pulse at t.
func (m *Meter) Edge(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.last.IsZero() {
		if p := t.Sub(m.last); p > 0 {
			m.period = p
		}
	}
	m.last = t
}

// RPM returns the speed derived from the latest pulse period, or 0 when no
// pulse arrived within the stale window.
func (m *Meter) RPM() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.period <= 0 || m.now().Sub(m.last) > m.stale {
		return 0
	}
	rpm := float64(time.Minute) / float64(m.period) / m.ppr * m.scale
	return int(rpm + 0.5)
}

// SetPPR sets pulses per revolution. Non-positive values are ignored.
func (m *Meter) SetPPR(ppr float64) {
	if ppr <= 0 {
		return
	}
	m.mu.Lock()
	m.ppr = ppr
	m.mu.Unlock()
}

// SetScale sets the calibration multiplier. Non-positive values are ignored.
func (m *Meter) SetScale(scale float64) {
	if scale <= 0 {
		return
	}
	m.mu.Lock()
	m.scale = scale
	m.mu.Unlock()
}

// Reset forgets the last pulse.
func (m *Meter) Reset() {
	m.mu.Lock()
	m.last = time.Time{}
	m.period = 0
	m.mu.Unlock()
}

// EventClock maps kernel edge timestamps (a monotonic offset) onto the
// control loop's clock. The first edge anchors the mapping; later edges keep
// their kernel spacing, so handler latency never shows up as RPM jitter.
// It is used from a single event goroutine.
type EventClock struct {
	now    func() time.Time
	anchor time.Time
	base   time.Duration
	set    bool
}

// NewEventClock creates an unanchored clock.
func NewEventClock(now func() time.Time) *EventClock {
	return &EventClock{now: now}
}

// At converts a kernel timestamp. A timestamp earlier than the anchor
// re-anchors the mapping.
func (c *EventClock) At(ts time.Duration) time.Time {
	if !c.set || ts < c.base {
		c.anchor = c.now()
		c.base = ts
		c.set = true
	}
	return c.anchor.Add(ts - c.base)
}
