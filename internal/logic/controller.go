package logic

import (
	"time"

	"github.com/sweeney/quickshifter/internal/config"
)

// Decision is the outcome of the cut computation for one shift.
type Decision struct {
	CutMs    int
	Line     config.Line
	Backfire bool
}

// Decide computes the cut for a shift at rpm. The caller has already checked
// rpm against RPMMin. In AUTO mode the band table must not be empty.
func Decide(rpm int, cfg config.Snapshot) Decision {
	d := Decision{
		CutMs: lookupCut(rpm, cfg),
		Line:  cfg.CutOutput,
	}
	if cfg.Backfire.Enabled && rpm >= cfg.Backfire.MinRPM {
		// Keep fuel flowing so the unburnt charge ignites in the exhaust.
		d.Backfire = true
		d.Line = config.LineIgnition
		d.CutMs += cfg.Backfire.ExtraMs
	}
	d.CutMs = config.ClampCut(d.CutMs)
	return d
}

// lookupCut returns the raw (unclamped) cut for rpm. Above every band the
// last band applies.
func lookupCut(rpm int, cfg config.Snapshot) int {
	if cfg.Mode == config.ModeManual {
		return cfg.ManualKillMs
	}
	for _, b := range cfg.Bands {
		if rpm >= b.RPMLo && rpm < b.RPMHi {
			return b.CutMs
		}
	}
	return cfg.Bands[len(cfg.Bands)-1].CutMs
}

// Controller is the quick-shift state machine. It is not safe for concurrent
// use; poll it from the control loop only.
type Controller struct {
	cfg     config.Provider
	rpm     RPMSource
	trigger ShiftTrigger
	out     PulseOutput
	log     LogSink

	state         CutState
	entered       time.Time
	lastRPM       int
	lastCutMs     int
	lastCutAt     time.Time
	holdoffRemain time.Duration
	reason        Reason
	canCut        bool
}

// NewController wires a controller to its collaborators. log may be nil.
func NewController(cfg config.Provider, rpm RPMSource, trigger ShiftTrigger, out PulseOutput, log LogSink) *Controller {
	return &Controller{
		cfg:     cfg,
		rpm:     rpm,
		trigger: trigger,
		out:     out,
		log:     log,
		reason:  ReasonOK,
	}
}

// Begin resets all runtime state to IDLE.
func (c *Controller) Begin(now time.Time) {
	c.state = CutIdle
	c.entered = now
	c.lastRPM = 0
	c.lastCutMs = 0
	c.lastCutAt = time.Time{}
	c.holdoffRemain = 0
	c.reason = ReasonOK
	c.canCut = false
}

// Tick advances the machine by at most one transition.
func (c *Controller) Tick(now time.Time) {
	cfg := c.cfg.Get()

	c.rpm.SetPPR(cfg.PPR)
	c.rpm.SetScale(cfg.RPMScale)
	rpm := c.rpm.RPM()
	c.lastRPM = rpm

	switch c.state {
	case CutIdle:
		if c.trigger.Pressed() {
			c.enter(CutArmed, now)
			c.reason = ReasonTriggered
		}

	case CutArmed:
		if rpm < cfg.RPMMin {
			c.reason = ReasonBelowRPMMin
			c.enter(CutIdle, now)
			break
		}
		c.enter(CutCut, now)
		c.reason = ReasonCutting
		c.cut(now, rpm, cfg)
		c.enter(CutRecover, now)
		c.holdoffRemain = cfg.Holdoff()

	case CutCut:
		// CUT is transient within a single Tick.
		c.enter(CutRecover, now)

	case CutRecover:
		elapsed := now.Sub(c.entered)
		holdoff := cfg.Holdoff()
		if elapsed >= holdoff {
			c.enter(CutIdle, now)
			c.reason = ReasonOK
			c.holdoffRemain = 0
		} else {
			c.holdoffRemain = holdoff - elapsed
			c.reason = ReasonHoldoff
		}
	}

	c.canCut = c.state == CutIdle && rpm >= cfg.RPMMin
}

func (c *Controller) cut(now time.Time, rpm int, cfg config.Snapshot) {
	d := Decide(rpm, cfg)
	c.out.Pulse(d.Line, time.Duration(d.CutMs)*time.Millisecond)
	c.lastCutMs = d.CutMs
	c.lastCutAt = now

	if c.log != nil {
		c.log.Append(CutRecord{
			Timestamp: now,
			RPM:       rpm,
			CutMs:     d.CutMs,
			AutoMode:  cfg.Mode == config.ModeAuto,
			Backfire:  d.Backfire,
			Line:      d.Line,
			Reason:    LogReasonShift,
		})
	}
}

func (c *Controller) enter(s CutState, now time.Time) {
	c.state = s
	c.entered = now
}

// State returns the current state.
func (c *Controller) State() CutState { return c.state }

// Reason returns the diagnostic reason for the last decision.
func (c *Controller) Reason() Reason { return c.reason }

// LastCutMs returns the duration of the most recent cut.
func (c *Controller) LastCutMs() int { return c.lastCutMs }

// LastCutAt returns when the most recent cut was issued.
func (c *Controller) LastCutAt() time.Time { return c.lastCutAt }

// HoldoffRemaining returns the hold-off left as of the last tick.
func (c *Controller) HoldoffRemaining() time.Duration { return c.holdoffRemain }

// CurrentRPM returns the RPM read on the last tick.
func (c *Controller) CurrentRPM() int { return c.lastRPM }

// CanCutNow reports whether a shift edge seen now would produce a cut,
// as of the last tick.
func (c *Controller) CanCutNow() bool { return c.canCut }

// Status returns a value copy of the diagnostics.
func (c *Controller) Status() CutStatus {
	return CutStatus{
		State:            c.state,
		Reason:           c.reason,
		RPM:              c.lastRPM,
		LastCutMs:        c.lastCutMs,
		LastCutAt:        c.lastCutAt,
		HoldoffRemaining: c.holdoffRemain,
		CanCut:           c.canCut,
	}
}
