// Package mqtt publishes quick-shifter telemetry with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/quickshifter/internal/logic"
)

// Topics.
const (
	TopicCuts   = "motorcycle/quickshifter/cuts"
	TopicLock   = "motorcycle/quickshifter/lock"
	TopicSystem = "motorcycle/quickshifter/system"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishCut sends one cut record. It must not block the control loop.
	PublishCut(rec logic.CutRecord) error

	// PublishLock sends a lock state transition.
	PublishLock(event LockEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// NewSessionID returns a fresh identifier for one daemon run.
func NewSessionID() string {
	return uuid.NewString()
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
	Wait       bool   // Block until delivered; only set once the outputs are released
}

// Lock event names.
const (
	LockLocked   = "LOCKED"
	LockUnlocked = "UNLOCKED"
	LockLockout  = "LOCKOUT"
	LockEnabled  = "ENABLED"
	LockDisabled = "DISABLED"
)

// LockEvent is a change in the anti-theft lock.
type LockEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string // e.g. "tap", "admin", "timeout", "retries"
	Retries   int
}

// CutPayload is the MQTT message payload for a cut record.
type CutPayload struct {
	Cut CutPayloadInner `json:"cut"`
}

// CutPayloadInner contains the cut details.
type CutPayloadInner struct {
	Session   string `json:"session"`
	Timestamp string `json:"timestamp"`
	RPM       int    `json:"rpm"`
	CutMs     int    `json:"cut_ms"`
	Mode      string `json:"mode"`
	Line      string `json:"line"`
	Backfire  bool   `json:"backfire"`
	Reason    string `json:"reason"`
}

// FormatCutPayload creates the JSON payload for a cut record.
func FormatCutPayload(session string, rec logic.CutRecord) ([]byte, error) {
	mode := "manual"
	if rec.AutoMode {
		mode = "auto"
	}
	line, err := rec.Line.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(CutPayload{
		Cut: CutPayloadInner{
			Session:   session,
			Timestamp: rec.Timestamp.UTC().Format(time.RFC3339Nano),
			RPM:       rec.RPM,
			CutMs:     rec.CutMs,
			Mode:      mode,
			Line:      string(line),
			Backfire:  rec.Backfire,
			Reason:    rec.Reason,
		},
	})
}

// LockPayload is the MQTT message payload for a lock event.
type LockPayload struct {
	Lock LockPayloadInner `json:"lock"`
}

// LockPayloadInner contains the lock event details.
type LockPayloadInner struct {
	Session   string `json:"session"`
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	Retries   int    `json:"retries"`
}

// FormatLockPayload creates the JSON payload for a lock event.
func FormatLockPayload(session string, event LockEvent) ([]byte, error) {
	return json.Marshal(LockPayload{
		Lock: LockPayloadInner{
			Session:   session,
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Retries:   event.Retries,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Session   string `json:"session,omitempty"`
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(session string, event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Session:   session,
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
