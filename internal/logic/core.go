package logic

import "time"

// StepResult summarises one control loop iteration.
type StepResult struct {
	Locked   bool
	Unlocked bool // the lock opened since the previous step
	Frozen   Frozen
}

// Core runs the Lock Guard and the Cut Controller in their fixed order.
type Core struct {
	Guard      *Guard
	Controller *Controller
	// Output is aged once per step; nil when the output has no timer.
	Output Ticker
}

// Begin resets both machines.
func (c *Core) Begin(now time.Time) {
	c.Controller.Begin(now)
	c.Guard.Begin(now)
}

// Step polls the guard first; the controller only runs while unlocked, so a
// quick-shift cut can never override the lock output in the same tick.
func (c *Core) Step(now time.Time) StepResult {
	c.Guard.Tick(now)
	if c.Output != nil {
		c.Output.Tick()
	}

	res := StepResult{
		Locked: c.Guard.IsLocked(),
		Frozen: c.Guard.frozen,
	}
	if res.Locked {
		return res
	}

	res.Unlocked = c.Guard.JustUnlocked()
	c.Controller.Tick(now)
	return res
}
