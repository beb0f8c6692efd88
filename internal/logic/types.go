// Package logic contains the quick-shifter decision core: the Cut Controller
// and the Lock Guard.
// This package has NO hardware or OS dependencies and never sleeps or logs.
// Time is always injectable via time.Time parameters; both machines advance
// only when polled.
package logic

import (
	"time"

	"github.com/sweeney/quickshifter/internal/config"
)

// RPMSource exposes the calibrated engine speed.
type RPMSource interface {
	RPM() int
	SetPPR(ppr float64)
	SetScale(scale float64)
}

// ShiftTrigger exposes the shift sensor.
type ShiftTrigger interface {
	// Pressed reports true exactly once per debounced press edge.
	Pressed() bool
	// RawLevel is the undebounced level; true means pressed.
	RawLevel() bool
}

// PulseOutput drives the two cut lines. Implementations never block.
type PulseOutput interface {
	// Pulse holds line active for d. A new pulse restarts any pulse in flight
	// on the same line.
	Pulse(line config.Line, d time.Duration)
	// Set forces the line level immediately, cancelling any timed pulse.
	Set(line config.Line, active bool)
	// IsActive reports whether any line is currently held active.
	IsActive() bool
}

// Ticker is a collaborator that must be aged once per loop iteration.
type Ticker interface {
	Tick()
}

// LogSink receives one record per issued cut.
type LogSink interface {
	Append(rec CutRecord)
}

// CutRecord describes one issued cut.
type CutRecord struct {
	Timestamp time.Time
	RPM       int
	CutMs     int
	AutoMode  bool
	Backfire  bool
	Line      config.Line
	Reason    string
}

// Reason explains the Cut Controller's last decision.
type Reason string

const (
	ReasonOK          Reason = "ok"
	ReasonTriggered   Reason = "triggered"
	ReasonBelowRPMMin Reason = "below_rpm_min"
	ReasonCutting     Reason = "cutting"
	ReasonHoldoff     Reason = "holdoff"
)

// LogReasonShift tags records produced by a rider shift.
const LogReasonShift = "shift"

// CutState is the Cut Controller state.
type CutState int

const (
	CutIdle CutState = iota
	CutArmed
	CutCut
	CutRecover
)

func (s CutState) String() string {
	switch s {
	case CutIdle:
		return "IDLE"
	case CutArmed:
		return "ARMED"
	case CutCut:
		return "CUT"
	case CutRecover:
		return "RECOVER"
	}
	return "UNKNOWN"
}

// Stage is the Lock Guard decode state.
type Stage int

const (
	StageIdle Stage = iota
	StagePressing
	StageGap
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "IDLE"
	case StagePressing:
		return "PRESSING"
	case StageGap:
		return "GAP"
	}
	return "UNKNOWN"
}

// Frozen explains why the Lock Guard has stopped reading the sensor.
type Frozen string

const (
	FrozenNone    Frozen = ""
	FrozenTimeout Frozen = "timeout"
	FrozenRetries Frozen = "retries"
)

// LockStatus is a point-in-time view of the Lock Guard.
type LockStatus struct {
	Enabled bool
	Locked  bool
	Stage   Stage
	Retries int
	// SeqLen is the number of bits typed so far; the bits themselves are
	// never exposed.
	SeqLen int
	Frozen Frozen
}

// CutStatus is a point-in-time view of the Cut Controller.
type CutStatus struct {
	State            CutState
	Reason           Reason
	RPM              int
	LastCutMs        int
	LastCutAt        time.Time
	HoldoffRemaining time.Duration
	CanCut           bool
}
