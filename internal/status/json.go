package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/quickshifter/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Mode          string       `json:"mode"`
	RPM           int          `json:"rpm"`
	Trigger       bool         `json:"trigger"`
	OutputActive  bool         `json:"output_active"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Cut           CutJSON      `json:"cut"`
	Lock          LockJSON     `json:"lock"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// CutJSON is the JSON representation of the Cut Controller diagnostics.
type CutJSON struct {
	State            string `json:"state"`
	Reason           string `json:"reason"`
	CanCut           bool   `json:"can_cut"`
	LastCutMs        int    `json:"last_cut_ms"`
	LastCutAt        string `json:"last_cut_at,omitempty"`
	HoldoffRemaining int64  `json:"holdoff_remaining_ms"`
}

// LockJSON is the JSON representation of the Lock Guard diagnostics.
// The typed bits are never exposed, only their count.
type LockJSON struct {
	Enabled bool   `json:"enabled"`
	Locked  bool   `json:"locked"`
	Stage   string `json:"stage"`
	Retries int    `json:"retries"`
	SeqLen  int    `json:"seq_len"`
	Frozen  string `json:"frozen,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Session   string `json:"session,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs     int64  `json:"poll_ms"`
	Broker     string `json:"broker"`
	HTTPPort   string `json:"http_port"`
	ConfigPath string `json:"config_path,omitempty"`
}

// LockStateJSON is the lock-only view served to the lock page.
func LockStateJSON(l logic.LockStatus) LockJSON {
	return LockJSON{
		Enabled: l.Enabled,
		Locked:  l.Locked,
		Stage:   l.Stage.String(),
		Retries: l.Retries,
		SeqLen:  l.SeqLen,
		Frozen:  string(l.Frozen),
	}
}

func buildInner(snap Snapshot) StatusInner {
	cut := CutJSON{
		State:            snap.Cut.State.String(),
		Reason:           string(snap.Cut.Reason),
		CanCut:           snap.Cut.CanCut,
		LastCutMs:        snap.Cut.LastCutMs,
		HoldoffRemaining: snap.Cut.HoldoffRemaining.Milliseconds(),
	}
	if !snap.Cut.LastCutAt.IsZero() {
		cut.LastCutAt = snap.Cut.LastCutAt.UTC().Format(time.RFC3339Nano)
	}

	return StatusInner{
		Mode:          snap.Mode.String(),
		RPM:           snap.Cut.RPM,
		Trigger:       snap.TriggerRaw,
		OutputActive:  snap.OutputActive,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Cut:           cut,
		Lock:          LockStateJSON(snap.Lock),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Session:   snap.Config.Session,
		},
		Config: ConfigJSON{
			PollMs:     snap.Config.PollMs,
			Broker:     snap.Config.Broker,
			HTTPPort:   snap.Config.HTTPPort,
			ConfigPath: snap.Config.ConfigPath,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// RecordJSON is one cut log entry.
type RecordJSON struct {
	Timestamp string `json:"ts"`
	RPM       int    `json:"rpm"`
	CutMs     int    `json:"cut"`
	Auto      bool   `json:"auto"`
	Backfire  bool   `json:"bf"`
	Line      string `json:"line"`
	Reason    string `json:"reason"`
}

// FormatLog returns the cut log as a JSON array, oldest first.
func FormatLog(records []logic.CutRecord) []byte {
	out := make([]RecordJSON, len(records))
	for i, r := range records {
		out[i] = RecordJSON{
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
			RPM:       r.RPM,
			CutMs:     r.CutMs,
			Auto:      r.AutoMode,
			Backfire:  r.Backfire,
			Line:      r.Line.String(),
			Reason:    r.Reason,
		}
	}
	data, _ := json.Marshal(out)
	return data
}
