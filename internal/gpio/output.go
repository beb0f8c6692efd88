package gpio

import (
	"time"

	"github.com/sweeney/quickshifter/internal/config"
)

// Output turns pulse and level requests into line writes. Timed pulses are
// released by Tick once their deadline passes, so nothing here sleeps.
type Output struct {
	w   LineWriter
	now func() time.Time

	active   [2]bool
	deadline [2]time.Time // zero when no timed pulse is pending

	err error
}

// NewOutput creates an Output with both lines released.
func NewOutput(w LineWriter, now func() time.Time) *Output {
	o := &Output{w: w, now: now}
	for _, l := range config.Lines {
		o.write(l, false)
	}
	return o
}

// Pulse asserts line for d. A pulse already running on the line is extended
// or shortened to the new deadline.
func (o *Output) Pulse(line config.Line, d time.Duration) {
	if !line.Valid() {
		return
	}
	o.write(line, true)
	o.deadline[line] = o.now().Add(d)
}

// Set drives a level and cancels any timed pulse on the line.
func (o *Output) Set(line config.Line, active bool) {
	if !line.Valid() {
		return
	}
	o.deadline[line] = time.Time{}
	o.write(line, active)
}

// IsActive reports whether either line is asserted.
func (o *Output) IsActive() bool {
	return o.active[config.LineIgnition] || o.active[config.LineInjection]
}

// Active reports the level of one line.
func (o *Output) Active(line config.Line) bool {
	if !line.Valid() {
		return false
	}
	return o.active[line]
}

// Tick releases expired pulses.
func (o *Output) Tick() {
	now := o.now()
	for _, l := range config.Lines {
		d := o.deadline[l]
		if d.IsZero() || now.Before(d) {
			continue
		}
		o.deadline[l] = time.Time{}
		o.write(l, false)
	}
}

// Release drops both lines and cancels pending pulses.
func (o *Output) Release() {
	for _, l := range config.Lines {
		o.Set(l, false)
	}
}

// Err returns and clears the first write error since the last call.
func (o *Output) Err() error {
	err := o.err
	o.err = nil
	return err
}

func (o *Output) write(line config.Line, active bool) {
	o.active[line] = active
	if err := o.w.Write(line, active); err != nil && o.err == nil {
		o.err = err
	}
}
