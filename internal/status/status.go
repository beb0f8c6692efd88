// Package status provides a thread-safe status tracker for the quickshifter
// daemon. It is written by the control loop and read by HTTP handlers and
// MQTT heartbeats.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/quickshifter/internal/config"
	"github.com/sweeney/quickshifter/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs     int64
	Broker     string
	HTTPPort   string
	ConfigPath string
	Session    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Cut           logic.CutStatus
	Lock          logic.LockStatus
	Mode          config.Mode
	TriggerRaw    bool
	OutputActive  bool
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update stores the machine diagnostics.
// Called from runLoop on every tick.
func (t *Tracker) Update(cut logic.CutStatus, lock logic.LockStatus, mode config.Mode) {
	t.mu.Lock()
	t.snap.Cut = cut
	t.snap.Lock = lock
	t.snap.Mode = mode
	t.mu.Unlock()
}

// SetIO records the raw trigger level and whether any cut line is held.
func (t *Tracker) SetIO(triggerRaw, outputActive bool) {
	t.mu.Lock()
	t.snap.TriggerRaw = triggerRaw
	t.snap.OutputActive = outputActive
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
